package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/barter-engine/internal/perf"
)

// HTTPRateLimiter is a thin Gin middleware adapter over
// internal/perf.RateLimiter, keyed by client IP: it protects the
// discover/mutation endpoints from bursts without a second token-bucket
// implementation to keep in sync.
type HTTPRateLimiter struct {
	limiter *perf.RateLimiter
}

// NewHTTPRateLimiter wraps a perf.RateLimiter allowing ratePerMin
// requests per minute per client IP, with the given burst capacity.
func NewHTTPRateLimiter(ratePerMin, burst int) *HTTPRateLimiter {
	return &HTTPRateLimiter{limiter: perf.NewRateLimiter(ratePerMin, burst)}
}

// Middleware returns a Gin handler that enforces the rate limit,
// rejecting with 429 and a Retry-After header once a client IP's bucket
// is exhausted.
func (rl *HTTPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.limiter.Allow(c.ClientIP())
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"retryAfter": retryAfter.String(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Close releases the underlying limiter's background cleanup goroutine.
func (rl *HTTPRateLimiter) Close() {
	rl.limiter.Close()
}
