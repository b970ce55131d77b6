package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/osvaldoandrade/autodeploy/pkg/config"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

func newTestHosting(t *testing.T, mux *http.ServeMux) HostingClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	h, err := NewGitHubHosting(config.GitHubConfig{Token: "ghp-test", APIURL: srv.URL, TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("NewGitHubHosting: %v", err)
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var testRepo = domain.Repository{Owner: "Me", Name: "demo1", DefaultBranch: "main"}

func TestNewGitHubHostingRequiresToken(t *testing.T) {
	if _, err := NewGitHubHosting(config.GitHubConfig{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestAuthenticatedOwner(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ghp-test" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"login": "Me"})
	})
	owner, err := newTestHosting(t, mux).AuthenticatedOwner(context.Background())
	if err != nil {
		t.Fatalf("AuthenticatedOwner: %v", err)
	}
	if owner != "Me" {
		t.Fatalf("owner = %q", owner)
	}
}

func TestCreateRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "demo1" || body["private"] != false || body["auto_init"] != false {
			t.Errorf("unexpected create body %v", body)
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"name":           "demo1",
			"owner":          map[string]any{"login": "Me"},
			"default_branch": "main",
			"html_url":       "https://github.com/Me/demo1",
		})
	})
	repo, err := newTestHosting(t, mux).CreateRepository(context.Background(), "demo1", "a page")
	if err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if repo.FullName() != "Me/demo1" || repo.DefaultBranch != "main" || repo.HTMLURL != "https://github.com/Me/demo1" {
		t.Fatalf("unexpected repo %+v", repo)
	}
}

func TestCreateRepositoryConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Repository creation failed.",
			"errors":  []map[string]any{{"resource": "Repository", "field": "name", "code": "custom", "message": "name already exists on this account"}},
		})
	})
	_, err := newTestHosting(t, mux).CreateRepository(context.Background(), "demo1", "")
	var hErr *HostingError
	if !errors.As(err, &hErr) {
		t.Fatalf("expected HostingError, got %v", err)
	}
	if hErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", hErr.StatusCode)
	}
	if hErr.Message != "Repository creation failed.; name already exists on this account" {
		t.Fatalf("message = %q", hErr.Message)
	}
	if IsRetryable(err) {
		t.Fatal("422 must not be retryable")
	}
}

func TestCommitFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/Me/demo1/contents/index.html", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			Branch  string `json:"branch"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		decoded, _ := base64.StdEncoding.DecodeString(body.Content)
		if string(decoded) != "<p>hi</p>" || body.Branch != "main" || body.Message != "Add index.html" {
			t.Errorf("unexpected commit body %+v (decoded %q)", body, decoded)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"commit": map[string]any{"sha": "abc123"}})
	})
	sha, err := newTestHosting(t, mux).CommitFile(context.Background(), testRepo, "index.html", []byte("<p>hi</p>"), "Add index.html")
	if err != nil {
		t.Fatalf("CommitFile: %v", err)
	}
	if sha != "abc123" {
		t.Fatalf("sha = %q", sha)
	}
}

func TestEnablePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/Me/demo1/pages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		src, _ := body["source"].(map[string]any)
		if body["build_type"] != "legacy" || src["branch"] != "main" || src["path"] != "/" {
			t.Errorf("unexpected pages body %v", body)
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"html_url": "https://me.github.io/demo1/",
			"status":   "building",
			"source":   map[string]any{"branch": "main", "path": "/"},
		})
	})
	site, err := newTestHosting(t, mux).EnablePages(context.Background(), testRepo, "/")
	if err != nil {
		t.Fatalf("EnablePages: %v", err)
	}
	if site.URL != "https://me.github.io/demo1/" || site.Status != "building" || site.AlreadyEnabled {
		t.Fatalf("unexpected site %+v", site)
	}
}

func TestEnablePagesAlreadyEnabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/Me/demo1/pages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "GitHub Pages is already enabled."})
	})
	mux.HandleFunc("GET /repos/Me/demo1/pages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"html_url": "https://me.github.io/demo1/",
			"status":   "built",
			"source":   map[string]any{"branch": "gh-pages", "path": "/docs"},
		})
	})
	site, err := newTestHosting(t, mux).EnablePages(context.Background(), testRepo, "/")
	if err != nil {
		t.Fatalf("EnablePages: %v", err)
	}
	if !site.AlreadyEnabled || site.Branch != "gh-pages" || site.Path != "/docs" || site.Status != "built" {
		t.Fatalf("unexpected site %+v", site)
	}
}

func TestEnablePagesServerErrorIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/Me/demo1/pages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "bad gateway"})
	})
	_, err := newTestHosting(t, mux).EnablePages(context.Background(), testRepo, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("502 should be retryable: %v", err)
	}
}

func TestPagesInfoNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/Me/missing/pages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	_, err := newTestHosting(t, mux).PagesInfo(context.Background(), "Me", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListWorkflowRuns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/Me/demo1/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per_page"); got != "2" {
			t.Errorf("per_page = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_count": 3,
			"workflow_runs": []map[string]any{
				{"id": 1, "workflow_id": 10, "status": "completed", "conclusion": "success", "html_url": "u1", "created_at": "2024-01-02T03:04:05Z"},
				{"id": 2, "workflow_id": 10, "status": "in_progress", "html_url": "u2", "created_at": "2024-01-02T03:05:05Z"},
				{"id": 3, "workflow_id": 10, "status": "queued", "html_url": "u3", "created_at": "2024-01-02T03:06:05Z"},
			},
		})
	})
	runs, err := newTestHosting(t, mux).ListWorkflowRuns(context.Background(), "Me", "demo1", 2)
	if err != nil {
		t.Fatalf("ListWorkflowRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != 1 || runs[0].Conclusion != "success" || runs[0].CreatedAt.Year() != 2024 {
		t.Fatalf("unexpected run %+v", runs[0])
	}
}

func TestPagesURL(t *testing.T) {
	if got := PagesURL("MyUser", "demo1"); got != "https://myuser.github.io/demo1" {
		t.Fatalf("PagesURL = %q", got)
	}
}
