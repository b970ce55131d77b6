package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/osvaldoandrade/autodeploy/internal/backoff"
	"github.com/osvaldoandrade/autodeploy/internal/logging"
	"github.com/osvaldoandrade/autodeploy/internal/metrics"
	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/internal/tracing"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
)

// PublisherService runs the hosting steps in order and stops at the first failure. Nothing
// already created is rolled back.
type PublisherService interface {
	Publish(ctx context.Context, artifacts domain.GeneratedArtifactSet, repoName, description string) domain.DeploymentResult
}

type publisherService struct {
	hosting   providers.HostingClient
	pagesPath string
	retry     backoff.Policy
	logger    *slog.Logger
	rng       *rand.Rand
}

func NewPublisherService(hosting providers.HostingClient, pagesPath string, retry backoff.Policy, logger *slog.Logger) PublisherService {
	if logger == nil {
		logger = slog.Default()
	}
	return &publisherService{
		hosting:   hosting,
		pagesPath: pagesPath,
		retry:     retry,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *publisherService) Publish(ctx context.Context, artifacts domain.GeneratedArtifactSet, repoName, description string) domain.DeploymentResult {
	var res domain.DeploymentResult

	var repo domain.Repository
	err := s.step(ctx, domain.StepCreate, func(ctx context.Context) error {
		var err error
		repo, err = s.hosting.CreateRepository(ctx, repoName, description)
		if err != nil {
			return &domain.PublishError{Step: domain.StepCreate, Err: err}
		}
		if repo.Owner == "" {
			if repo.Owner, err = s.hosting.AuthenticatedOwner(ctx); err != nil {
				return &domain.PublishError{Step: domain.StepCreate, Err: err}
			}
		}
		return nil
	})
	res.Record(domain.StepCreate, err)
	if err != nil {
		return res
	}
	res.Repository = repo.FullName()
	res.HTMLURL = repo.HTMLURL
	ctx = logging.WithFields(ctx, logging.Fields{Repository: res.Repository})

	err = s.step(ctx, domain.StepCommit, func(ctx context.Context) error {
		paths := artifacts.Paths()
		if len(paths) == 0 {
			return &domain.PublishError{Step: domain.StepCommit, Err: errors.New("no files to commit")}
		}
		for _, p := range paths {
			sha, err := s.hosting.CommitFile(ctx, repo, p, []byte(artifacts.Files[p]), "Add "+p)
			if err != nil {
				return &domain.PublishError{Step: domain.StepCommit, Path: p, Err: err}
			}
			res.CommitSHA = sha
			s.logger.DebugContext(ctx, "committed file", "path", p, "sha", sha)
		}
		return nil
	})
	res.Record(domain.StepCommit, err)
	if err != nil {
		return res
	}

	err = s.step(ctx, domain.StepPages, func(ctx context.Context) error {
		var site domain.PagesSite
		err := backoff.Retry(ctx, s.retry, s.rng, providers.IsRetryable, func(ctx context.Context) error {
			var err error
			site, err = s.hosting.EnablePages(ctx, repo, s.pagesPath)
			return err
		})
		if err != nil {
			return &domain.PublishError{Step: domain.StepPages, Err: err}
		}
		s.logger.InfoContext(ctx, "pages enabled", "status", site.Status, "already_enabled", site.AlreadyEnabled)
		return nil
	})
	res.Record(domain.StepPages, err)
	if err != nil {
		return res
	}
	res.RepoURL = providers.PagesURL(repo.Owner, repo.Name)
	return res
}

func (s *publisherService) step(ctx context.Context, name domain.StepName, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+string(name), attribute.String("pipeline.step", string(name)))
	start := time.Now()
	err := fn(ctx)
	metrics.PipelineStepLatencySeconds.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	metrics.PipelineStepsTotal.WithLabelValues(string(name), metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.WarnContext(ctx, "publish step failed", "step", string(name), "err", err)
	}
	tracing.EndSpan(span, err)
	return err
}
