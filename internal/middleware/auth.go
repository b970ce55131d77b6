package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/pkg/auth"
)

const SecretHeader = "X-Autodeploy-Secret"

// SecretAuthMiddleware guards read routes that expose hosting state. The secret travels in
// SecretHeader, or as a Bearer token.
func SecretAuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shared secret not configured"})
			return
		}
		secret := c.GetHeader(SecretHeader)
		if secret == "" {
			secret = bearerToken(c.GetHeader("Authorization"))
		}
		if secret == "" {
			metrics.RejectedRequestsTotal.WithLabelValues("unauthorized").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing secret", "field": "secret"})
			return
		}
		claims, err := validator.Validate(secret)
		if err != nil {
			metrics.RejectedRequestsTotal.WithLabelValues("unauthorized").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret", "field": "secret"})
			return
		}
		c.Set("authClaims", claims)
		c.Next()
	}
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
