package executor

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before a retry attempt. Zero values pick
// the production defaults.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added at random, 0..1
}

func (b *Backoff) applyDefaults() {
	if b.MaxAttempts == 0 {
		b.MaxAttempts = 3
	}
	if b.BaseDelay == 0 {
		b.BaseDelay = 500 * time.Millisecond
	}
	if b.MaxDelay == 0 {
		b.MaxDelay = 5 * time.Second
	}
	if b.Jitter == 0 {
		b.Jitter = 0.2
	}
}

// Delay returns the wait after attempt (1-based) has failed:
// BaseDelay doubled per attempt, capped at MaxDelay, plus jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	b.applyDefaults()
	d := b.BaseDelay << uint(attempt-1)
	if d > b.MaxDelay || d <= 0 {
		d = b.MaxDelay
	}
	return d + time.Duration(rand.Float64()*b.Jitter*float64(d))
}
