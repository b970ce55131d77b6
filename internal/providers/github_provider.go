package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/osvaldoandrade/autodeploy/pkg/config"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const defaultBranch = "main"

// HostingClient is the subset of the hosting oracle the publisher and status reporter use.
type HostingClient interface {
	AuthenticatedOwner(ctx context.Context) (string, error)
	CreateRepository(ctx context.Context, name, description string) (domain.Repository, error)
	// CommitFile creates path on the repository's default branch and returns the commit sha.
	CommitFile(ctx context.Context, repo domain.Repository, path string, content []byte, message string) (string, error)
	EnablePages(ctx context.Context, repo domain.Repository, path string) (domain.PagesSite, error)
	PagesInfo(ctx context.Context, owner, name string) (domain.PagesSite, error)
	ListWorkflowRuns(ctx context.Context, owner, name string, limit int) ([]domain.WorkflowRun, error)
}

// ErrNotFound is returned when the hosting oracle answers 404.
var ErrNotFound = errors.New("not found on hosting oracle")

type githubHosting struct {
	client  *github.Client
	timeout time.Duration
}

func NewGitHubHosting(cfg config.GitHubConfig) (HostingClient, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("hosting token missing")
	}
	client := github.NewClient(&http.Client{}).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
		client.BaseURL = u
	}
	return &githubHosting{client: client, timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}, nil
}

func (g *githubHosting) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *githubHosting) AuthenticatedOwner(ctx context.Context) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", wrapGitHubError("get authenticated user", err)
	}
	return user.GetLogin(), nil
}

func (g *githubHosting) CreateRepository(ctx context.Context, name, description string) (domain.Repository, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	repo, _, err := g.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(false),
		AutoInit:    github.Bool(false),
		HasIssues:   github.Bool(true),
		HasWiki:     github.Bool(false),
	})
	if err != nil {
		return domain.Repository{}, wrapGitHubError("create repository "+name, err)
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = defaultBranch
	}
	return domain.Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		DefaultBranch: branch,
		HTMLURL:       repo.GetHTMLURL(),
	}, nil
}

func (g *githubHosting) CommitFile(ctx context.Context, repo domain.Repository, path string, content []byte, message string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	branch := repo.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}
	resp, _, err := g.client.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	})
	if err != nil {
		return "", wrapGitHubError("create file "+path, err)
	}
	return resp.Commit.GetSHA(), nil
}

func (g *githubHosting) EnablePages(ctx context.Context, repo domain.Repository, path string) (domain.PagesSite, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	branch := repo.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}
	if path == "" {
		path = "/"
	}
	pages, _, err := g.client.Repositories.EnablePages(ctx, repo.Owner, repo.Name, &github.Pages{
		Source:    &github.PagesSource{Branch: github.String(branch), Path: github.String(path)},
		BuildType: github.String("legacy"),
	})
	if err != nil {
		if statusCode(err) == http.StatusConflict {
			site, infoErr := g.pagesInfo(ctx, repo.Owner, repo.Name)
			if infoErr != nil {
				return domain.PagesSite{}, infoErr
			}
			site.AlreadyEnabled = true
			return site, nil
		}
		return domain.PagesSite{}, wrapGitHubError("enable pages", err)
	}
	return pagesSite(pages, branch, path), nil
}

func (g *githubHosting) PagesInfo(ctx context.Context, owner, name string) (domain.PagesSite, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.pagesInfo(ctx, owner, name)
}

func (g *githubHosting) pagesInfo(ctx context.Context, owner, name string) (domain.PagesSite, error) {
	pages, _, err := g.client.Repositories.GetPagesInfo(ctx, owner, name)
	if err != nil {
		return domain.PagesSite{}, wrapGitHubError("get pages info", err)
	}
	return pagesSite(pages, "", ""), nil
}

func (g *githubHosting) ListWorkflowRuns(ctx context.Context, owner, name string, limit int) ([]domain.WorkflowRun, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 5
	}
	runs, _, err := g.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, wrapGitHubError("list workflow runs", err)
	}
	out := make([]domain.WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		if len(out) == limit {
			break
		}
		out = append(out, domain.WorkflowRun{
			ID:         r.GetID(),
			WorkflowID: r.GetWorkflowID(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
			HTMLURL:    r.GetHTMLURL(),
			CreatedAt:  r.GetCreatedAt().Time,
		})
	}
	return out, nil
}

func pagesSite(p *github.Pages, branch, path string) domain.PagesSite {
	site := domain.PagesSite{
		URL:    p.GetHTMLURL(),
		Status: p.GetStatus(),
		Branch: branch,
		Path:   path,
	}
	if src := p.GetSource(); src != nil {
		if b := src.GetBranch(); b != "" {
			site.Branch = b
		}
		if pth := src.GetPath(); pth != "" {
			site.Path = pth
		}
	}
	return site
}

// PagesURL is the public site address GitHub serves for owner/name.
func PagesURL(owner, name string) string {
	return fmt.Sprintf("https://%s.github.io/%s", strings.ToLower(owner), name)
}

// HostingError carries the oracle's status code alongside the failed operation.
type HostingError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *HostingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: hosting oracle returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HostingError) Unwrap() error { return e.Err }

func (e *HostingError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func statusCode(err error) int {
	var hErr *HostingError
	if errors.As(err, &hErr) && hErr.StatusCode > 0 {
		return hErr.StatusCode
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	var rlErr *github.RateLimitError
	if errors.As(err, &rlErr) && rlErr.Response != nil {
		return rlErr.Response.StatusCode
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return abuseErr.Response.StatusCode
	}
	return 0
}

func wrapGitHubError(op string, err error) error {
	hErr := &HostingError{Op: op, StatusCode: statusCode(err), Err: err}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		hErr.Message = ghErr.Message
		for _, e := range ghErr.Errors {
			if e.Message != "" {
				hErr.Message += "; " + e.Message
			}
		}
	}
	return hErr
}

// IsRetryable reports whether a hosting error is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	code := statusCode(err)
	if code == 0 {
		return !errors.Is(err, context.Canceled)
	}
	return code >= 500 || code == http.StatusTooManyRequests
}
