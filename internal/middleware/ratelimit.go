package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitStore counts hits per subject over a sliding window
type RateLimitStore interface {
	Allow(ctx context.Context, subject string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

// RateLimiter throttles each merchant to burst requests per second
type RateLimiter struct {
	store  RateLimitStore
	rps    int
	burst  int
	window time.Duration
}

func NewRateLimiter(store RateLimitStore, rps, burst int) *RateLimiter {
	if burst < rps {
		burst = rps
	}
	return &RateLimiter{store: store, rps: rps, burst: burst, window: time.Second}
}

// Middleware must run after Auth; unauthenticated callers are keyed by IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "merchant:" + GetMerchantID(c)
		if GetMerchantID(c) == "" {
			subject = "ip:" + c.ClientIP()
		}

		allowed, remaining, err := rl.store.Allow(c.Request.Context(), subject, rl.burst, rl.window)
		if err != nil {
			// Fail open
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("subject", subject).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "Too many requests for merchant. Retry after " + rl.window.String(),
			})
			return
		}

		c.Next()
	}
}
