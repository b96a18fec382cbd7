package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

// bucket is an in-memory token bucket for one caller.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// rateLimiter holds per-caller buckets.
type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // maximum token capacity
}

// newRateLimiter creates a limiter allowing rps requests per second with a
// burst of max(10, rps).
func newRateLimiter(rps int) *rateLimiter {
	burst := float64(rps)
	if burst < 10 {
		burst = 10
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rps),
		burst:   burst,
	}
}

// allow deducts one token from key's bucket, returning false when empty.
func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			b = &bucket{tokens: rl.burst, lastRefill: now}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evict drops buckets idle since before cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// RateLimitMiddleware enforces a token bucket of rps requests per second per
// caller.  Authenticated requests are keyed by user id, anonymous ones by
// client IP.  Callers over the limit receive 429.  Stale buckets are evicted
// until ctx is cancelled.
func RateLimitMiddleware(ctx context.Context, rps int) gin.HandlerFunc {
	rl := newRateLimiter(rps)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evict(time.Now().Add(-10 * time.Minute))
			}
		}
	}()

	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := GetUserID(c); id != uuid.Nil {
			key = "user:" + id.String()
		}
		if !rl.allow(key, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, please slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
