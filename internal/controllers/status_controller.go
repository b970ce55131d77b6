package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/pkg/config"
)

type StatusResponse struct {
	AIConfigured      bool   `json:"aiConfigured"`
	HostingConfigured bool   `json:"hostingConfigured"`
	SecretConfigured  bool   `json:"secretConfigured"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
}

type statusController struct {
	cfg     *config.Config
	started time.Time
	now     func() time.Time
}

// NewStatusController reports from configuration alone; it never calls an oracle.
func NewStatusController(cfg *config.Config, started time.Time, now func() time.Time) *statusController {
	if now == nil {
		now = time.Now
	}
	return &statusController{cfg: cfg, started: started, now: now}
}

func (h *statusController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		AIConfigured:      h.cfg.AIConfigured(),
		HostingConfigured: h.cfg.HostingConfigured(),
		SecretConfigured:  h.cfg.SecretConfigured(),
		Provider:          h.cfg.AI.Provider,
		Model:             h.cfg.AI.Model,
		UptimeSeconds:     int64(h.now().Sub(h.started).Seconds()),
	})
}
