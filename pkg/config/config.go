package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/osvaldoandrade/autodeploy/internal/backoff"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"

	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

type Config struct {
	Port         int    `yaml:"port"`
	Env          string `yaml:"env"`
	LogLevel     string `yaml:"logLevel"`
	LogFormat    string `yaml:"logFormat"`
	SharedSecret string `yaml:"sharedSecret"`
	// AuthProvider names the pkg/auth provider that checks the shared secret.
	AuthProvider string `yaml:"authProvider"`

	AI        AIConfig        `yaml:"ai"`
	GitHub    GitHubConfig    `yaml:"github"`
	Publish   PublishConfig   `yaml:"publish"`
	Callback  CallbackConfig  `yaml:"callback"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   TracingConfig   `yaml:"tracing"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
}

type AIConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type GitHubConfig struct {
	Token          string `yaml:"token"`
	APIURL         string `yaml:"apiUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type PublishConfig struct {
	DisableScaffold bool   `yaml:"disableScaffold"`
	LicenseHolder   string `yaml:"licenseHolder"`
	PagesPath       string `yaml:"pagesPath"`
}

type CallbackConfig struct {
	SigningSecret      string `yaml:"signingSecret"`
	MaxAttempts        int    `yaml:"maxAttempts"`
	BaseBackoffSeconds int    `yaml:"baseBackoffSeconds"`
	MaxBackoffSeconds  int    `yaml:"maxBackoffSeconds"`
	TimeoutSeconds     int    `yaml:"timeoutSeconds"`
}

// RetryConfig bounds retries of idempotent oracle calls. MaxAttempts=1 means a single attempt.
type RetryConfig struct {
	MaxAttempts int    `yaml:"maxAttempts"`
	Policy      string `yaml:"policy"`
	BaseSeconds int    `yaml:"baseSeconds"`
	MaxSeconds  int    `yaml:"maxSeconds"`
}

type RateLimitConfig struct {
	Deploy   RateLimitBucketConfig `yaml:"deploy"`
	Callback RateLimitBucketConfig `yaml:"callback"`
}

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b RateLimitBucketConfig) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are given)
// without overriding variables already present in the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	c.logSummary()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty path or a missing file,
// in which case configuration comes from the environment and defaults only.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	c.logSummary()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	envString("ENV", &c.Env)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("API_SECRET", &c.SharedSecret)
	envString("AUTH_PROVIDER", &c.AuthProvider)

	envString("AI_PROVIDER", &c.AI.Provider)
	envString("AI_MODEL", &c.AI.Model)
	envString("AI_BASE_URL", &c.AI.BaseURL)
	envInt("AI_TIMEOUT_SECONDS", &c.AI.TimeoutSeconds)
	// Provider-specific keys first so the generic one wins when both are set.
	switch strings.ToLower(strings.TrimSpace(c.AI.Provider)) {
	case ProviderOpenAI:
		envString("OPENAI_API_KEY", &c.AI.APIKey)
	case ProviderGemini, "":
		envString("GEMINI_API_KEY", &c.AI.APIKey)
	}
	envString("AI_API_KEY", &c.AI.APIKey)

	envString("GITHUB_TOKEN", &c.GitHub.Token)
	envString("GITHUB_API_URL", &c.GitHub.APIURL)
	envInt("HOSTING_TIMEOUT_SECONDS", &c.GitHub.TimeoutSeconds)

	if v := strings.TrimSpace(os.Getenv("PUBLISH_DISABLE_SCAFFOLD")); v != "" {
		c.Publish.DisableScaffold = parseBool(v)
	}
	envString("PUBLISH_LICENSE_HOLDER", &c.Publish.LicenseHolder)

	envString("CALLBACK_SIGNING_SECRET", &c.Callback.SigningSecret)
	envInt("CALLBACK_MAX_ATTEMPTS", &c.Callback.MaxAttempts)
	envInt("CALLBACK_BASE_BACKOFF_SECONDS", &c.Callback.BaseBackoffSeconds)
	envInt("CALLBACK_MAX_BACKOFF_SECONDS", &c.Callback.MaxBackoffSeconds)
	envInt("CALLBACK_TIMEOUT_SECONDS", &c.Callback.TimeoutSeconds)

	envInt("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	envString("BACKOFF_POLICY", &c.Retry.Policy)
	envInt("BACKOFF_BASE_SECONDS", &c.Retry.BaseSeconds)
	envInt("BACKOFF_MAX_SECONDS", &c.Retry.MaxSeconds)

	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envInt("RATE_LIMIT_RPM", &c.RateLimit.Deploy.RequestsPerMinute)
	envInt("RATE_LIMIT_BURST", &c.RateLimit.Deploy.BurstSize)

	if v := strings.TrimSpace(os.Getenv("TRACING_ENABLED")); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	envString("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.AuthProvider == "" {
		c.AuthProvider = "static"
	}

	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "" {
		c.AI.Provider = ProviderGemini
	}
	if c.AI.Model == "" {
		switch c.AI.Provider {
		case ProviderOpenAI:
			c.AI.Model = "gpt-4o-mini"
		case ProviderGemini:
			c.AI.Model = "gemini-2.5-flash"
		default:
			c.AI.Model = "mock"
		}
	}
	if c.AI.BaseURL == "" && c.AI.Provider == ProviderGemini {
		c.AI.BaseURL = DefaultGeminiBaseURL
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 120
	}

	if c.GitHub.TimeoutSeconds <= 0 {
		c.GitHub.TimeoutSeconds = 30
	}
	if c.Publish.LicenseHolder == "" {
		c.Publish.LicenseHolder = "AI Generated Project"
	}
	if c.Publish.PagesPath == "" {
		c.Publish.PagesPath = "/"
	}

	if c.Callback.MaxAttempts <= 0 {
		c.Callback.MaxAttempts = 3
	}
	if c.Callback.BaseBackoffSeconds <= 0 {
		c.Callback.BaseBackoffSeconds = 2
	}
	if c.Callback.MaxBackoffSeconds <= 0 {
		c.Callback.MaxBackoffSeconds = 30
	}
	if c.Callback.TimeoutSeconds <= 0 {
		c.Callback.TimeoutSeconds = 30
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Retry.Policy == "" {
		c.Retry.Policy = backoff.PolicyExpFullJitter
	}
	if c.Retry.BaseSeconds <= 0 {
		c.Retry.BaseSeconds = 1
	}
	if c.Retry.MaxSeconds <= 0 {
		c.Retry.MaxSeconds = 10
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "autodeploy"
	}
}

func (c *Config) logSummary() {
	if !c.SecretConfigured() {
		log.Println("Warning: API_SECRET not set; deployment requests will be rejected")
	}
	log.Printf("autodeploy config: {Port:%d Env:%s AI:%s/%s AIKey:%s GitHubToken:%s Redis:%s}\n",
		c.Port, c.Env, c.AI.Provider, c.AI.Model, mask(c.AI.APIKey), mask(c.GitHub.Token), emptyOr(c.RedisAddr, "<disabled>"))
}

// AIConfigured reports whether generation calls can be made. The mock provider needs no key.
func (c *Config) AIConfigured() bool {
	return c.AI.Provider == ProviderMock || strings.TrimSpace(c.AI.APIKey) != ""
}

func (c *Config) HostingConfigured() bool {
	return strings.TrimSpace(c.GitHub.Token) != ""
}

func (c *Config) SecretConfigured() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

// MissingCredentials names the absent credentials, in a stable order.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if !c.AIConfigured() {
		missing = append(missing, "ai api key")
	}
	if !c.HostingConfigured() {
		missing = append(missing, "hosting token")
	}
	if !c.SecretConfigured() {
		missing = append(missing, "shared secret")
	}
	return missing
}

func (c *Config) Validate() error {
	var errs []string

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderMock:
	default:
		errs = append(errs, fmt.Sprintf("ai.provider %q is not supported", c.AI.Provider))
	}
	if c.AI.BaseURL != "" && !validHTTPURL(c.AI.BaseURL) {
		errs = append(errs, "ai.baseUrl must be a valid http(s) URL")
	}
	if c.GitHub.APIURL != "" && !validHTTPURL(c.GitHub.APIURL) {
		errs = append(errs, "github.apiUrl must be a valid http(s) URL")
	}
	if !validPolicy(c.Retry.Policy) {
		errs = append(errs, fmt.Sprintf("retry.policy %q is not supported", c.Retry.Policy))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	if c.RateLimit.Deploy.Enabled() && c.RedisAddr == "" {
		errs = append(errs, "rateLimit.deploy requires redisAddr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPolicy(name string) bool {
	for _, p := range backoff.Policies {
		if p == name {
			return true
		}
	}
	return false
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}

func mask(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
