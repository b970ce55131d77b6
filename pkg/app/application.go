package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/osvaldoandrade/autodeploy/internal/backoff"
	"github.com/osvaldoandrade/autodeploy/internal/logging"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/middleware"
	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/internal/ratelimit"
	"github.com/osvaldoandrade/autodeploy/internal/services"
	"github.com/osvaldoandrade/autodeploy/internal/tracing"
	"github.com/osvaldoandrade/autodeploy/pkg/auth"
	_ "github.com/osvaldoandrade/autodeploy/pkg/auth/static" // Register the shared-secret provider
	"github.com/osvaldoandrade/autodeploy/pkg/config"
)

type Application struct {
	Config  *config.Config
	Engine  *gin.Engine
	Logger  *slog.Logger
	Started time.Time

	SecretValidator auth.Validator
	LLM             providers.LLMClient
	Hosting         providers.HostingClient
	Redis           *redis.Client
	RateLimiter     ratelimit.Limiter

	Orchestrator     services.OrchestratorService
	DeploymentStatus services.DeploymentStatusService

	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithSecretValidator replaces the validator built from cfg.AuthProvider.
func WithSecretValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.SecretValidator = validator
		return nil
	}
}

// WithLLMClient replaces the AI oracle client built from cfg.AI.
func WithLLMClient(llm providers.LLMClient) ApplicationOption {
	return func(app *Application) error {
		app.LLM = llm
		return nil
	}
}

// WithHostingClient replaces the hosting oracle client built from cfg.GitHub.
func WithHostingClient(h providers.HostingClient) ApplicationOption {
	return func(app *Application) error {
		app.Hosting = h
		return nil
	}
}

func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		Config:  cfg,
		Started: time.Now(),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Logger == nil {
		app.Logger = logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.Env)
		slog.SetDefault(app.Logger)
	}
	logger := app.Logger

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	app.TracingShutdown = shutdown

	app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	if app.Redis != nil {
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.Redis)
	}

	if app.SecretValidator == nil && cfg.SecretConfigured() {
		raw, err := json.Marshal(map[string]string{"secret": cfg.SharedSecret})
		if err != nil {
			return nil, err
		}
		validator, err := auth.NewValidator(auth.ProviderConfig{Type: cfg.AuthProvider, Config: raw})
		if err != nil {
			return nil, err
		}
		app.SecretValidator = validator
	}

	// Oracle clients exist only when their credentials do; requests are refused before
	// reaching a missing client.
	if app.LLM == nil && cfg.AIConfigured() {
		if app.LLM, err = providers.NewLLMClient(cfg.AI); err != nil {
			return nil, fmt.Errorf("ai oracle: %w", err)
		}
	}
	if app.Hosting == nil && cfg.HostingConfigured() {
		if app.Hosting, err = providers.NewGitHubHosting(cfg.GitHub); err != nil {
			return nil, fmt.Errorf("hosting oracle: %w", err)
		}
	}

	metrics.RegisterStateCollector(func() map[string]bool {
		return map[string]bool{
			"ai":      cfg.AIConfigured(),
			"hosting": cfg.HostingConfigured(),
			"secret":  cfg.SecretConfigured(),
		}
	}, app.Redis, logger)

	retry := backoff.Policy{
		Name:        cfg.Retry.Policy,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseSeconds: cfg.Retry.BaseSeconds,
		MaxSeconds:  cfg.Retry.MaxSeconds,
	}

	deps := services.OrchestratorDeps{
		Capabilities: services.Capabilities{AI: app.LLM != nil, Hosting: app.Hosting != nil},
		Validator:    services.NewValidationService(app.SecretValidator),
		Notifier: services.NewCallbackService(logger, services.CallbackOptions{
			SigningSecret:      cfg.Callback.SigningSecret,
			MaxAttempts:        cfg.Callback.MaxAttempts,
			BaseBackoffSeconds: cfg.Callback.BaseBackoffSeconds,
			MaxBackoffSeconds:  cfg.Callback.MaxBackoffSeconds,
			Timeout:            time.Duration(cfg.Callback.TimeoutSeconds) * time.Second,
			Limiter:            app.RateLimiter,
			Bucket:             ratelimit.NewBucket(cfg.RateLimit.Callback.RequestsPerMinute, cfg.RateLimit.Callback.BurstSize),
		}),
		Logger: logger,
	}
	if app.LLM != nil {
		deps.Generator = services.NewGenerationService(app.LLM, retry, logger)
	}
	if app.Hosting != nil {
		deps.Publisher = services.NewPublisherService(app.Hosting, cfg.Publish.PagesPath, retry, logger)
		app.DeploymentStatus = services.NewDeploymentStatusService(app.Hosting, logger)
	}
	if !cfg.Publish.DisableScaffold {
		deps.Scaffold = services.NewScaffoldService(cfg.Publish.LicenseHolder, time.Now)
	}
	app.Orchestrator = services.NewOrchestratorService(deps)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.LoggerMiddleware(logger),
	)
	app.Engine = engine

	logger.Info("application initialized",
		"ai_configured", app.LLM != nil,
		"hosting_configured", app.Hosting != nil,
		"secret_configured", app.SecretValidator != nil,
		"redis", app.Redis != nil,
	)
	return app, nil
}
