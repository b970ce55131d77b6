package services

import (
	"context"
	"errors"
	"sync"

	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []providers.Prompt
}

func (f *fakeLLM) Complete(ctx context.Context, p providers.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, p)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeHosting records every call. failCommit names a path whose commit fails.
type fakeHosting struct {
	mu sync.Mutex

	owner       string
	createErr   error
	failCommit  string
	pagesErrs   []error
	pagesInfo   domain.PagesSite
	pagesInfoEr error
	runs        []domain.WorkflowRun
	runsErr     error
	// onCreate runs after the repository exists upstream, before the reply is read.
	onCreate func()

	calls     map[string]int
	committed []string
}

var errHostingDown = errors.New("hosting oracle down")

func newFakeHosting() *fakeHosting {
	return &fakeHosting{owner: "Octo", calls: map[string]int{}}
}

func (f *fakeHosting) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeHosting) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeHosting) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeHosting) AuthenticatedOwner(context.Context) (string, error) {
	f.record("owner")
	return f.owner, nil
}

func (f *fakeHosting) CreateRepository(ctx context.Context, name, _ string) (domain.Repository, error) {
	f.record("create")
	if f.createErr != nil {
		return domain.Repository{}, f.createErr
	}
	if f.onCreate != nil {
		f.onCreate()
	}
	if err := ctx.Err(); err != nil {
		return domain.Repository{}, err
	}
	return domain.Repository{
		Owner:         f.owner,
		Name:          name,
		DefaultBranch: "main",
		HTMLURL:       "https://github.com/" + f.owner + "/" + name,
	}, nil
}

func (f *fakeHosting) CommitFile(ctx context.Context, _ domain.Repository, path string, _ []byte, _ string) (string, error) {
	n := f.record("commit")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if path == f.failCommit {
		return "", &providers.HostingError{Op: "create file " + path, StatusCode: 422, Message: "invalid"}
	}
	f.mu.Lock()
	f.committed = append(f.committed, path)
	f.mu.Unlock()
	return "sha" + string(rune('0'+n)), nil
}

func (f *fakeHosting) EnablePages(ctx context.Context, _ domain.Repository, path string) (domain.PagesSite, error) {
	n := f.record("pages")
	if err := ctx.Err(); err != nil {
		return domain.PagesSite{}, err
	}
	if n <= len(f.pagesErrs) && f.pagesErrs[n-1] != nil {
		return domain.PagesSite{}, f.pagesErrs[n-1]
	}
	return domain.PagesSite{Status: "building", Branch: "main", Path: path}, nil
}

func (f *fakeHosting) PagesInfo(context.Context, string, string) (domain.PagesSite, error) {
	f.record("pagesInfo")
	return f.pagesInfo, f.pagesInfoEr
}

func (f *fakeHosting) ListWorkflowRuns(_ context.Context, _, _ string, _ int) ([]domain.WorkflowRun, error) {
	f.record("runs")
	return f.runs, f.runsErr
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []domain.DeploymentResult
}

func (n *recordingNotifier) Notify(_ context.Context, _ domain.TaskBrief, res domain.DeploymentResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

const helloCompletion = "A page that greets the visitor.\n\n```filename: index.html\n<h1>hello</h1>\n```\n"

func domainBrief(task string, round int, checks ...string) domain.TaskBrief {
	return domain.TaskBrief{Task: task, Round: round, Checks: checks}
}
