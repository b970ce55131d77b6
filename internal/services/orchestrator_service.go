package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/osvaldoandrade/autodeploy/internal/logging"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/tracing"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxSlugLen        = 40
	maxDescriptionLen = 350
)

// Capabilities reports which oracle credentials the process was started with.
type Capabilities struct {
	AI      bool
	Hosting bool
}

func (c Capabilities) missing() []string {
	var m []string
	if !c.AI {
		m = append(m, "ai api key")
	}
	if !c.Hosting {
		m = append(m, "hosting token")
	}
	return m
}

// OrchestratorService runs validate, generate and publish for one request. Validation and
// configuration failures return an error and no result; every later failure is reported in
// the result's steps.
type OrchestratorService interface {
	Run(ctx context.Context, req domain.TaskRequest) (domain.DeploymentResult, error)
}

type OrchestratorDeps struct {
	Capabilities Capabilities
	Validator    ValidationService
	Generator    GenerationService
	Publisher    PublisherService
	// Scaffold is optional; nil publishes the generated files only.
	Scaffold ScaffoldService
	// Notifier is optional.
	Notifier CallbackNotifier
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

type orchestratorService struct {
	deps OrchestratorDeps
}

func NewOrchestratorService(deps OrchestratorDeps) OrchestratorService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.NewString() }
	}
	return &orchestratorService{deps: deps}
}

func (s *orchestratorService) Run(ctx context.Context, req domain.TaskRequest) (domain.DeploymentResult, error) {
	if missing := s.deps.Capabilities.missing(); len(missing) > 0 {
		metrics.RejectedRequestsTotal.WithLabelValues("configuration").Inc()
		return domain.DeploymentResult{}, &domain.ConfigurationError{Missing: missing}
	}

	brief, err := s.deps.Validator.Validate(req)
	if err != nil {
		metrics.RejectedRequestsTotal.WithLabelValues(rejectReason(err)).Inc()
		return domain.DeploymentResult{}, err
	}

	res := domain.DeploymentResult{ID: s.deps.NewID(), CreatedAt: s.deps.Now().UTC()}
	repoName := brief.RepoName
	if repoName == "" {
		repoName = DeriveRepoName(brief.Task, brief.Round, res.ID)
	}
	ctx = logging.WithFields(ctx, logging.Fields{DeploymentID: res.ID})
	ctx, span := tracing.StartSpan(ctx, "deployment.run",
		attribute.String("deployment.id", res.ID),
		attribute.String("deployment.repo_name", repoName),
	)
	s.deps.Logger.InfoContext(ctx, "deployment started", "repo_name", repoName, "round", brief.Round)

	// Runs to completion once started, whatever happens to the caller; oracle calls keep
	// their own timeouts.
	res = s.pipeline(context.WithoutCancel(ctx), brief, repoName, res)
	res.Finalize()

	span.SetAttributes(attribute.String("deployment.status", string(res.Status)))
	var spanErr error
	if res.Status != domain.StatusSuccess {
		spanErr = errors.New("deployment " + string(res.Status))
	}
	tracing.EndSpan(span, spanErr)
	metrics.DeploymentsTotal.WithLabelValues(string(res.Status)).Inc()
	s.deps.Logger.InfoContext(ctx, "deployment finished", "status", string(res.Status), "repository", res.Repository, "repo_url", res.RepoURL)

	if brief.CallbackURL != "" && s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, brief, res)
	}
	return res, nil
}

func (s *orchestratorService) pipeline(ctx context.Context, brief domain.TaskBrief, repoName string, res domain.DeploymentResult) domain.DeploymentResult {
	artifacts, err := s.deps.Generator.Generate(ctx, brief)
	res.Record(domain.StepGenerate, err)
	if err != nil {
		s.deps.Logger.WarnContext(ctx, "generation failed", "err", err)
		return res
	}
	res.Summary = artifacts.Summary

	if s.deps.Scaffold != nil {
		extra, err := s.deps.Scaffold.Files(brief, repoName, artifacts.Summary)
		if err != nil {
			// README and LICENSE are extras; publish without them.
			s.deps.Logger.WarnContext(ctx, "scaffold render failed", "err", err)
		} else {
			artifacts = artifacts.WithDefaults(extra)
		}
	}

	published := s.deps.Publisher.Publish(ctx, artifacts, repoName, repoDescription(brief.Task))
	res.Steps = append(res.Steps, published.Steps...)
	res.Repository = published.Repository
	res.RepoURL = published.RepoURL
	res.HTMLURL = published.HTMLURL
	res.CommitSHA = published.CommitSHA
	return res
}

func rejectReason(err error) string {
	var verr *domain.ValidationError
	var cerr *domain.ConfigurationError
	switch {
	case errors.As(err, &verr) && verr.Unauthorized():
		return "unauthorized"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &cerr):
		return "configuration"
	default:
		return "other"
	}
}

// DeriveRepoName builds a repository name from the task when the caller gave none. Rounds
// of the same task map to the same name; otherwise a short id keeps names unique.
func DeriveRepoName(task string, round int, id string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(task) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
		if sb.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "site"
	}
	if round > 0 {
		return slug + "-r" + strconv.Itoa(round)
	}
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		return slug
	}
	return slug + "-" + short
}

func repoDescription(task string) string {
	task = strings.Join(strings.Fields(task), " ")
	if utf8.RuneCountInString(task) <= maxDescriptionLen {
		return task
	}
	r := []rune(task)
	return string(r[:maxDescriptionLen-3]) + "..."
}
