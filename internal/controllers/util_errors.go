package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

// writeError maps pipeline errors onto HTTP responses. Anything unrecognized is a 502 since
// it can only have come from an oracle.
func writeError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		cerr *domain.ConfigurationError
		herr *providers.HostingError
	)
	switch {
	case errors.As(err, &verr):
		code := http.StatusBadRequest
		if verr.Unauthorized() {
			code = http.StatusUnauthorized
		}
		c.JSON(code, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &cerr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": cerr.Error(), "missing": cerr.Missing})
	case errors.Is(err, providers.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &herr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "upstreamStatus": herr.StatusCode})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
