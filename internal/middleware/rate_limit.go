package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/ratelimit"
	"github.com/osvaldoandrade/autodeploy/pkg/config"
)

const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimitDeploy throttles deployment requests per client address. Each accepted request
// costs two oracle round trips, so the bucket is usually small.
func RateLimitDeploy(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitClient(lim, ratelimit.ScopeDeploy, cfg.RateLimit.Deploy)
}

func rateLimitClient(lim ratelimit.Limiter, scope string, bcfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.NewBucket(bcfg.RequestsPerMinute, bcfg.BurstSize)
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, c.ClientIP(), bucket)
		if err != nil {
			// Fail open to avoid turning Redis hiccups into outages.
			slog.Default().WarnContext(c.Request.Context(), "rate limit check failed", "scope", scope, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Header(RateLimitRemainingHeader, strconv.Itoa(dec.Remaining))
			c.Next()
			return
		}

		retryAfterSeconds := max(1, int(math.Ceil(dec.RetryAfter.Seconds())))
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(scope).Inc()
		metrics.RejectedRequestsTotal.WithLabelValues("rate_limited").Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"scope":             scope,
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
