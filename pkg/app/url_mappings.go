package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/autodeploy/internal/controllers"
	"github.com/osvaldoandrade/autodeploy/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	health := controllers.NewHealthController()
	app.Engine.GET("/health", health.Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := app.Engine.Group("/api")
	{
		api.GET("/health", health.Handle)
		api.GET("/status", controllers.NewStatusController(app.Config, app.Started, time.Now).Handle)
		api.GET("/status/:repoName",
			middleware.SecretAuthMiddleware(app.SecretValidator),
			controllers.NewDeploymentStatusController(app.DeploymentStatus).Handle)
		api.POST("/generate-and-deploy-task",
			middleware.RateLimitDeploy(app.RateLimiter, app.Config),
			controllers.NewGenerateDeployController(app.Orchestrator).Handle)
	}
}
