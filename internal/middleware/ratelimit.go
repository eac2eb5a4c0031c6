package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hoststack/license-service/internal/config"
	"github.com/hoststack/license-service/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Coarse per-IP guard in front of the public validate endpoint. The real
// per-license enforcement happens inside the pipeline; this just keeps a
// single address from monopolizing the endpoint. Fails open on store
// errors, same as the pipeline limiters.
func PublicRateLimit(store ratelimit.Store, cfg *config.Config) gin.HandlerFunc {
	limiter := ratelimit.NewLimiter(
		store,
		cfg.RateLimit.PublicAlgorithm,
		"public:rate:",
		cfg.RateLimit.PublicRequestsPerMinute,
		time.Minute,
	)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := c.ClientIP()

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			c.Next()
			return
		}

		remaining, _ := limiter.Remaining(ctx, key)
		resetTime, _ := limiter.Reset(ctx, key)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
