// Package middleware provides HTTP middleware for the backup API.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/persistorai/anonforum/internal/httputil"
)

const (
	// maxLimiters bounds the number of tracked keys.
	maxLimiters = 100_000

	limiterIdle  = 10 * time.Minute
	limiterSweep = 5 * time.Minute
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the caller's IP address. c.ClientIP() ignores
// forwarding headers because the router trusts no proxies.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByAPIClient charges requests to the authenticated API client, falling back
// to the IP address before authentication has run.
func ByAPIClient(c *gin.Context) string {
	if id := c.GetString(ClientIDKey); id != "" {
		return "client:" + id
	}

	return c.ClientIP()
}

type keyedLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps a token bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	limit    rate.Limit
	burst    int
	key      KeyFunc
}

// NewRateLimiter creates a RateLimiter allowing ratePerSec requests per
// second with the given burst. Requests are keyed by client IP unless a
// KeyFunc is given. Idle limiters are evicted until ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int, key ...KeyFunc) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyedLimiter),
		limit:    rate.Limit(ratePerSec),
		burst:    burst,
		key:      ByClientIP,
	}
	if len(key) > 0 && key[0] != nil {
		rl.key = key[0]
	}
	go rl.evictIdle(ctx)

	return rl
}

func (rl *RateLimiter) evictIdle(ctx context.Context) {
	ticker := time.NewTicker(limiterSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for k, l := range rl.limiters {
				if now.Sub(l.seen) > limiterIdle {
					delete(rl.limiters, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// limiter returns the limiter for key, or nil when the table is full.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			return nil
		}
		l = &keyedLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.seen = now

	return l.lim
}

// retryAfter is the whole number of seconds until one token is available.
func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 {
		return "60"
	}

	return strconv.Itoa(int(math.Ceil(1 / float64(rl.limit))))
}

// Handler returns Gin middleware that applies the limiter.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()

		lim := rl.limiter(rl.key(c), now)
		if lim == nil {
			httputil.RespondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")

			return
		}

		if !lim.AllowN(now, 1) {
			c.Header("Retry-After", rl.retryAfter())
			httputil.RespondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")

			return
		}

		c.Next()
	}
}
