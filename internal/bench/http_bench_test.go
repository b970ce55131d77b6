package bench

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/autodeploy/internal/middleware"
	"github.com/osvaldoandrade/autodeploy/internal/providers"
	"github.com/osvaldoandrade/autodeploy/pkg/app"
	_ "github.com/osvaldoandrade/autodeploy/pkg/auth/static" // Register static auth provider.
	"github.com/osvaldoandrade/autodeploy/pkg/config"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

const benchSecret = "bench-secret"

// memHosting keeps repositories in memory so benchmarks measure the service, not the network.
type memHosting struct {
	mu    sync.Mutex
	repos map[string]int
	seq   int
}

func (m *memHosting) AuthenticatedOwner(context.Context) (string, error) { return "bench", nil }

func (m *memHosting) CreateRepository(_ context.Context, name, _ string) (domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[name]; ok {
		return domain.Repository{}, &providers.HostingError{Op: "create repository " + name, StatusCode: http.StatusUnprocessableEntity, Message: "name already exists"}
	}
	m.repos[name] = 0
	return domain.Repository{Owner: "bench", Name: name, DefaultBranch: "main", HTMLURL: "https://github.com/bench/" + name}, nil
}

func (m *memHosting) CommitFile(_ context.Context, repo domain.Repository, _ string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[repo.Name]++
	m.seq++
	return fmt.Sprintf("sha%d", m.seq), nil
}

func (m *memHosting) EnablePages(_ context.Context, repo domain.Repository, path string) (domain.PagesSite, error) {
	return domain.PagesSite{URL: providers.PagesURL(repo.Owner, repo.Name), Branch: repo.DefaultBranch, Path: path}, nil
}

func (m *memHosting) PagesInfo(_ context.Context, owner, name string) (domain.PagesSite, error) {
	return domain.PagesSite{URL: providers.PagesURL(owner, name), Status: "built"}, nil
}

func (m *memHosting) ListWorkflowRuns(context.Context, string, string, int) ([]domain.WorkflowRun, error) {
	return []domain.WorkflowRun{}, nil
}

func newBenchApp(b *testing.B, withRedis bool) *app.Application {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	cfg := &config.Config{
		Env:          "bench",
		LogLevel:     "error",
		LogFormat:    "json",
		SharedSecret: benchSecret,
		AuthProvider: "static",
		AI:           config.AIConfig{Provider: config.ProviderMock, Model: "mock"},
		Publish:      config.PublishConfig{PagesPath: "/", LicenseHolder: "Bench"},
		Retry:        config.RetryConfig{MaxAttempts: 1, Policy: "fixed", BaseSeconds: 1, MaxSeconds: 1},
	}
	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis start: %v", err)
		}
		b.Cleanup(mr.Close)
		cfg.RedisAddr = mr.Addr()
		// Generous bucket so the limiter runs on every request without rejecting.
		cfg.RateLimit.Deploy = config.RateLimitBucketConfig{RequestsPerMinute: 1_000_000, BurstSize: 1_000_000}
	}

	a, err := app.NewApplication(cfg,
		app.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		app.WithLLMClient(providers.MockLLM{}),
		app.WithHostingClient(&memHosting{repos: map[string]int{}}),
	)
	if err != nil {
		b.Fatalf("NewApplication: %v", err)
	}
	app.SetupMappings(a)
	return a
}

func doJSONRequest(b *testing.B, h http.Handler, method, path string, body []byte) (int, []byte) {
	b.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SecretHeader, benchSecret)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func benchmarkDeploy(b *testing.B, withRedis bool) {
	a := newBenchApp(b, withRedis)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		body := []byte(fmt.Sprintf(`{"task":"a page that says hello","secret":%q,"repoName":"bench-%d"}`, benchSecret, i))
		status, resp := doJSONRequest(b, a.Engine, http.MethodPost, "/api/generate-and-deploy-task", body)
		if status != http.StatusOK {
			b.Fatalf("deploy status %d body=%s", status, string(resp))
		}
		if !bytes.Contains(resp, []byte(`"status":"success"`)) {
			b.Fatalf("deploy not successful: %s", string(resp))
		}
	}
}

func BenchmarkHTTP_GenerateAndDeploy(b *testing.B) { benchmarkDeploy(b, false) }

func BenchmarkHTTP_GenerateAndDeployRateLimited(b *testing.B) { benchmarkDeploy(b, true) }

func BenchmarkOrchestrator_Run(b *testing.B) {
	a := newBenchApp(b, false)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := a.Orchestrator.Run(ctx, domain.TaskRequest{
			Task:     "a page that says hello",
			Secret:   benchSecret,
			RepoName: fmt.Sprintf("orch-%d", i),
		})
		if err != nil {
			b.Fatalf("Run: %v", err)
		}
		if res.Status != domain.StatusSuccess {
			b.Fatalf("Run status %s", res.Status)
		}
	}
}

func BenchmarkHTTP_DeploymentStatus(b *testing.B) {
	a := newBenchApp(b, false)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doJSONRequest(b, a.Engine, http.MethodGet, "/api/status/demo", nil)
		if status != http.StatusOK {
			b.Fatalf("status %d body=%s", status, string(resp))
		}
	}
}
