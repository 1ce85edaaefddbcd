package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"daemon/internal/trading"
)

// Ledger is the chain read surface the oracle caches over.
type Ledger interface {
	NativeBalance(ctx context.Context, address string) (uint64, error)
	TokenBalance(ctx context.Context, address, mint string) (uint64, error)
}

// Config tunes cache and retry behaviour. Zero values pick the defaults
// used in production.
type Config struct {
	TTL            time.Duration // cache freshness window
	MaxAttempts    int           // ledger attempts per miss
	RetryDelay     time.Duration // fixed delay between attempts
	AttemptTimeout time.Duration // per-attempt deadline
}

func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = 10 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = 5 * time.Second
	}
}

type cacheEntry struct {
	value     uint64
	updatedAt time.Time
}

// Oracle serves native and token balances through a shared TTL cache.
// Reads may run concurrently across sessions; a failed refresh falls back
// to the last known value rather than blocking the caller.
type Oracle struct {
	ledger Ledger
	cfg    Config

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func New(ledger Ledger, cfg Config) *Oracle {
	cfg.applyDefaults()
	return &Oracle{
		ledger: ledger,
		cfg:    cfg,
		cache:  make(map[string]cacheEntry),
	}
}

// NativeBalance returns the native-asset balance for address in lamports.
func (o *Oracle) NativeBalance(ctx context.Context, address string) (uint64, error) {
	return o.lookup(ctx, address, func(ctx context.Context) (uint64, error) {
		return o.ledger.NativeBalance(ctx, address)
	})
}

// TokenBalance returns the raw token balance for (address, mint).
func (o *Oracle) TokenBalance(ctx context.Context, address, mint string) (uint64, error) {
	return o.lookup(ctx, address+":"+mint, func(ctx context.Context) (uint64, error) {
		return o.ledger.TokenBalance(ctx, address, mint)
	})
}

// Invalidate drops every cached entry for address. Called after a
// confirmed trade so the next tick sees the post-trade balances.
func (o *Oracle) Invalidate(address string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key := range o.cache {
		if key == address || strings.HasPrefix(key, address+":") {
			delete(o.cache, key)
		}
	}
}

func (o *Oracle) lookup(ctx context.Context, key string, fetch func(context.Context) (uint64, error)) (uint64, error) {
	o.mu.RLock()
	entry, ok := o.cache[key]
	o.mu.RUnlock()
	if ok && time.Since(entry.updatedAt) < o.cfg.TTL {
		return entry.value, nil
	}

	value, err := o.fetchWithRetry(ctx, key, fetch)
	if err != nil {
		// Serve the last known value when we have one; a stale balance
		// beats stalling the whole session on a flaky RPC.
		if ok {
			log.WithField("key", key).Warnf("balance refresh failed, serving cached value: %v", err)
			return entry.value, nil
		}
		return 0, fmt.Errorf("oracle: %s: %w: %v", key, trading.ErrBalanceUnavailable, err)
	}

	o.mu.Lock()
	o.cache[key] = cacheEntry{value: value, updatedAt: time.Now()}
	o.mu.Unlock()
	return value, nil
}

func (o *Oracle) fetchWithRetry(ctx context.Context, key string, fetch func(context.Context) (uint64, error)) (uint64, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		value, err := fetch(attemptCtx)
		cancel()
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt < o.cfg.MaxAttempts {
			log.WithField("key", key).Debugf("balance fetch attempt %d failed: %v", attempt, err)
			select {
			case <-time.After(o.cfg.RetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	return 0, lastErr
}
