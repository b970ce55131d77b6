package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const (
	recentWorkflowRuns = 5
	PagesNotEnabled    = "not_enabled"
)

// DeploymentStatusService reads the live hosting state of a repository owned by the
// authenticated account.
type DeploymentStatusService interface {
	Status(ctx context.Context, repoName string) (domain.DeploymentReport, error)
}

type deploymentStatusService struct {
	hosting providers.HostingClient
	logger  *slog.Logger
}

func NewDeploymentStatusService(hosting providers.HostingClient, logger *slog.Logger) DeploymentStatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &deploymentStatusService{hosting: hosting, logger: logger}
}

func (s *deploymentStatusService) Status(ctx context.Context, repoName string) (domain.DeploymentReport, error) {
	if name := checkRepoName(repoName); name != "" {
		return domain.DeploymentReport{}, &domain.ValidationError{Field: "repoName", Reason: name}
	}
	owner, err := s.hosting.AuthenticatedOwner(ctx)
	if err != nil {
		return domain.DeploymentReport{}, err
	}

	report := domain.DeploymentReport{
		Repository:   owner + "/" + repoName,
		PagesURL:     providers.PagesURL(owner, repoName),
		WorkflowRuns: []domain.WorkflowRun{},
	}

	site, err := s.hosting.PagesInfo(ctx, owner, repoName)
	switch {
	case errors.Is(err, providers.ErrNotFound):
		report.PagesStatus = PagesNotEnabled
	case err != nil:
		return domain.DeploymentReport{}, err
	default:
		report.PagesStatus = site.Status
		if site.URL != "" {
			report.PagesURL = site.URL
		}
	}

	runs, err := s.hosting.ListWorkflowRuns(ctx, owner, repoName, recentWorkflowRuns)
	if err != nil {
		// Repositories without Actions report no runs.
		s.logger.DebugContext(ctx, "list workflow runs failed", "repository", report.Repository, "err", err)
		return report, nil
	}
	if len(runs) > recentWorkflowRuns {
		runs = runs[:recentWorkflowRuns]
	}
	report.WorkflowRuns = append(report.WorkflowRuns, runs...)
	return report, nil
}
