package services

import (
	"bytes"
	"context"
	"errors"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/osvaldoandrade/autodeploy/internal/backoff"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/internal/tracing"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
	"github.com/yuin/goldmark"
	"go.opentelemetry.io/otel/attribute"
)

type GenerationService interface {
	Generate(ctx context.Context, brief domain.TaskBrief) (domain.GeneratedArtifactSet, error)
}

type generationService struct {
	llm    providers.LLMClient
	retry  backoff.Policy
	logger *slog.Logger
	md     goldmark.Markdown
	rng    *rand.Rand
}

func NewGenerationService(llm providers.LLMClient, retry backoff.Policy, logger *slog.Logger) GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &generationService{
		llm:    llm,
		retry:  retry,
		logger: logger,
		md:     goldmark.New(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *generationService) Generate(ctx context.Context, brief domain.TaskBrief) (domain.GeneratedArtifactSet, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.generate")
	start := time.Now()
	set, err := s.generate(ctx, brief)
	metrics.PipelineStepLatencySeconds.WithLabelValues(string(domain.StepGenerate)).Observe(time.Since(start).Seconds())
	metrics.PipelineStepsTotal.WithLabelValues(string(domain.StepGenerate), metrics.Outcome(err)).Inc()
	if err == nil {
		span.SetAttributes(attribute.Int("artifact.files", len(set.Files)))
	}
	tracing.EndSpan(span, err)
	return set, err
}

func (s *generationService) generate(ctx context.Context, brief domain.TaskBrief) (domain.GeneratedArtifactSet, error) {
	prompt := BuildPrompt(brief)

	var text string
	attempt := 0
	err := backoff.Retry(ctx, s.retry, s.rng, retryableGeneration, func(ctx context.Context) error {
		attempt++
		out, err := s.llm.Complete(ctx, prompt)
		if err != nil {
			s.logger.WarnContext(ctx, "ai oracle call failed", "attempt", attempt, "err", err)
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		reason := "ai oracle unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "ai oracle timed out"
		}
		return domain.GeneratedArtifactSet{}, &domain.GenerationError{Reason: reason, Err: err}
	}

	if strings.TrimSpace(text) == "" {
		return domain.GeneratedArtifactSet{}, &domain.GenerationError{Reason: "ai oracle returned an empty response"}
	}

	files, summary, err := parseArtifacts(text)
	if err != nil {
		return domain.GeneratedArtifactSet{}, &domain.GenerationError{Reason: "unusable response", Err: err}
	}
	if len(files) == 0 {
		return domain.GeneratedArtifactSet{}, &domain.GenerationError{Reason: "no files found in response"}
	}

	if _, ok := files["index.html"]; !ok {
		page, err := s.renderIndex(brief.Task, summary)
		if err != nil {
			return domain.GeneratedArtifactSet{}, &domain.GenerationError{Reason: "render index.html", Err: err}
		}
		files["index.html"] = page
	}

	s.logger.InfoContext(ctx, "generated artifacts", "files", len(files), "attempts", attempt)
	return domain.GeneratedArtifactSet{Files: files, Summary: summary}, nil
}

// renderIndex gives the site an entry point when the oracle only produced assets.
func (s *generationService) renderIndex(title, summary string) (string, error) {
	if summary == "" {
		summary = "# " + title
	}
	var body bytes.Buffer
	if err := s.md.Convert([]byte(summary), &body); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	sb.WriteString("<link rel=\"stylesheet\" href=\"styles.css\">\n</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("<script src=\"script.js\"></script>\n</body>\n</html>\n")
	return sb.String(), nil
}

// retryableGeneration retries transport failures, rate limiting and server errors. Other
// API rejections (bad key, bad request) fail the same way on every attempt.
func retryableGeneration(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}
