package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/middleware"
	"github.com/osvaldoandrade/autodeploy/internal/services"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const maxRequestBytes = 1 << 20

type generateDeployController struct{ svc services.OrchestratorService }

func NewGenerateDeployController(svc services.OrchestratorService) *generateDeployController {
	return &generateDeployController{svc: svc}
}

// Handle answers 200 with the DeploymentResult for every request that got past validation,
// whatever its status.
func (h *generateDeployController) Handle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
	var req domain.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RejectedRequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	res, err := h.svc.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.DeploymentIDKey, res.ID)
	c.Set(middleware.DeploymentStatusKey, string(res.Status))
	c.JSON(http.StatusOK, res)
}
