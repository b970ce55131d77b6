package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/autodeploy/internal/backoff"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/ratelimit"
	"github.com/osvaldoandrade/autodeploy/internal/tracing"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const (
	SignatureHeader    = "X-Autodeploy-Signature"
	DeploymentIDHeader = "X-Autodeploy-Deployment-Id"
	signatureTTL       = 5 * time.Minute
)

// Callback statuses understood by evaluation endpoints. Only a fully successful deployment
// is completed; partial and error deployments are both reported as failed with the first
// failing step in Error.
const (
	CallbackCompleted = "completed"
	CallbackFailed    = "failed"
)

// CallbackPayload is POSTed to the brief's callback URL once a deployment finishes. RepoURL
// is the repository page and PagesURL the published site.
type CallbackPayload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// CallbackNotifier delivers results best-effort. Failures are logged and counted, never
// surfaced to the deployment.
type CallbackNotifier interface {
	Notify(ctx context.Context, brief domain.TaskBrief, result domain.DeploymentResult)
}

type callbackService struct {
	logger      *slog.Logger
	client      *http.Client
	secret      string
	maxAttempts int
	baseSeconds int
	maxSeconds  int

	limiter ratelimit.Limiter
	bucket  ratelimit.Bucket

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	done  func()
}

type CallbackOptions struct {
	SigningSecret      string
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int
	Timeout            time.Duration
	Limiter            ratelimit.Limiter
	Bucket             ratelimit.Bucket
}

func NewCallbackService(logger *slog.Logger, opts CallbackOptions) CallbackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoffSeconds <= 0 {
		opts.BaseBackoffSeconds = 2
	}
	if opts.MaxBackoffSeconds <= 0 {
		opts.MaxBackoffSeconds = 30
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &callbackService{
		logger:      logger,
		client:      &http.Client{Timeout: opts.Timeout},
		secret:      opts.SigningSecret,
		maxAttempts: opts.MaxAttempts,
		baseSeconds: opts.BaseBackoffSeconds,
		maxSeconds:  opts.MaxBackoffSeconds,
		limiter:     opts.Limiter,
		bucket:      opts.Bucket,
		sleep:       sleepOrDone,
		now:         time.Now,
	}
}

func BuildCallbackPayload(brief domain.TaskBrief, result domain.DeploymentResult) CallbackPayload {
	p := CallbackPayload{
		Email:     brief.Email,
		Task:      brief.Task,
		Round:     brief.Round,
		Nonce:     brief.Nonce,
		RepoURL:   result.HTMLURL,
		CommitSHA: result.CommitSHA,
		PagesURL:  result.RepoURL,
		Status:    CallbackFailed,
	}
	if result.Status == domain.StatusSuccess {
		p.Status = CallbackCompleted
		return p
	}
	for _, s := range result.Steps {
		if !s.Success {
			p.Error = string(s.Name) + ": " + s.Error
			break
		}
	}
	if p.Error == "" {
		p.Error = "deployment " + string(result.Status)
	}
	return p
}

func (s *callbackService) Notify(ctx context.Context, brief domain.TaskBrief, result domain.DeploymentResult) {
	if strings.TrimSpace(brief.CallbackURL) == "" {
		return
	}
	body, err := json.Marshal(BuildCallbackPayload(brief, result))
	if err != nil {
		s.logger.ErrorContext(ctx, "callback payload encode failed", "err", err)
		return
	}
	// The request that triggered the deployment may already be finished.
	go s.sendWithRetry(context.WithoutCancel(ctx), result.ID, brief.CallbackURL, body)
}

func (s *callbackService) sendWithRetry(ctx context.Context, deploymentID, url string, body []byte) {
	if s.done != nil {
		defer s.done()
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if !s.waitForBucket(ctx, url) {
			return
		}

		err := s.deliver(ctx, deploymentID, url, body)
		if err == nil {
			metrics.CallbackDeliveriesTotal.WithLabelValues("success").Inc()
			s.logger.InfoContext(ctx, "callback delivered", "url", url, "attempt", attempt)
			return
		}
		s.logger.WarnContext(ctx, "callback attempt failed", "url", url, "attempt", attempt, "err", err)
		if attempt == s.maxAttempts {
			break
		}
		delay := time.Duration(backoff.Compute(backoff.PolicyExponential, s.baseSeconds, s.maxSeconds, attempt-1, nil)) * time.Second
		if s.sleep(ctx, delay) != nil {
			break
		}
	}
	metrics.CallbackDeliveriesTotal.WithLabelValues("failure").Inc()
	s.logger.WarnContext(ctx, "callback failed", "url", url, "attempts", s.maxAttempts)
}

// waitForBucket blocks until the callback bucket for url has a token. Limiter errors fail open.
func (s *callbackService) waitForBucket(ctx context.Context, url string) bool {
	if s.limiter == nil || !s.bucket.Enabled() {
		return true
	}
	for {
		dec, err := s.limiter.Allow(ctx, ratelimit.ScopeCallback, url, s.bucket)
		if err != nil || dec.Allowed {
			return true
		}
		metrics.RateLimitHitsTotal.WithLabelValues(ratelimit.ScopeCallback).Inc()
		if s.sleep(ctx, dec.RetryAfter) != nil {
			return false
		}
	}
}

func (s *callbackService) deliver(ctx context.Context, deploymentID, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeploymentIDHeader, deploymentID)
	tracing.InjectHeaders(ctx, req.Header)
	if err := s.sign(req, deploymentID, body); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// sign attaches an HS256 token whose body_sha256 claim binds it to this exact payload.
func (s *callbackService) sign(req *http.Request, deploymentID string, body []byte) error {
	if strings.TrimSpace(s.secret) == "" {
		return nil
	}
	sum := sha256.Sum256(body)
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":         "autodeploy",
		"sub":         deploymentID,
		"iat":         now.Unix(),
		"exp":         now.Add(signatureTTL).Unix(),
		"body_sha256": hex.EncodeToString(sum[:]),
	})
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return fmt.Errorf("sign callback: %w", err)
	}
	req.Header.Set(SignatureHeader, signed)
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
