package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/services"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

type deploymentStatusController struct{ svc services.DeploymentStatusService }

// NewDeploymentStatusController accepts a nil service when no hosting token is configured.
func NewDeploymentStatusController(svc services.DeploymentStatusService) *deploymentStatusController {
	return &deploymentStatusController{svc: svc}
}

func (h *deploymentStatusController) Handle(c *gin.Context) {
	if h.svc == nil {
		writeError(c, &domain.ConfigurationError{Missing: []string{"hosting token"}})
		return
	}
	name := strings.TrimSpace(c.Param("repoName"))
	report, err := h.svc.Status(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
