package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig configures per-client rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// limiterMap tracks one token bucket per client IP. The map is reset when
// it grows past maxTrackedClients to bound memory.
type limiterMap struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimiterConfig
}

const maxTrackedClients = 1000

func newLimiterMap(config RateLimiterConfig) *limiterMap {
	lm := &limiterMap{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
	go lm.cleanup()
	return lm
}

func (lm *limiterMap) get(ip string) *rate.Limiter {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	limiter, ok := lm.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(lm.config.RequestsPerSecond), lm.config.Burst)
		lm.limiters[ip] = limiter
	}
	return limiter
}

func (lm *limiterMap) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		lm.mu.Lock()
		if len(lm.limiters) > maxTrackedClients {
			lm.limiters = make(map[string]*rate.Limiter)
		}
		lm.mu.Unlock()
	}
}

// RateLimiter rejects requests past the per-IP budget with 429
func RateLimiter(config RateLimiterConfig) gin.HandlerFunc {
	limiters := newLimiterMap(config)

	return func(c *gin.Context) {
		limiter := limiters.get(c.ClientIP())
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := reservation.DelayFrom(time.Now()).Seconds()
			reservation.Cancel()

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
