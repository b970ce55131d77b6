package domain

import (
	"encoding"
	"sort"
	"time"
)

type StepName string

const (
	StepGenerate StepName = "generate"
	StepCreate   StepName = "create"
	StepCommit   StepName = "commit"
	StepPages    StepName = "pages"
)

// PipelineSteps lists every step a fully successful deployment records, in order.
var PipelineSteps = []StepName{StepGenerate, StepCreate, StepCommit, StepPages}

type DeploymentStatus string

const (
	StatusSuccess DeploymentStatus = "success"
	StatusPartial DeploymentStatus = "partial"
	StatusError   DeploymentStatus = "error"
)

var (
	_ encoding.TextMarshaler = StepName("")
	_ encoding.TextMarshaler = DeploymentStatus("")
)

func (s StepName) MarshalText() ([]byte, error)         { return []byte(string(s)), nil }
func (s DeploymentStatus) MarshalText() ([]byte, error) { return []byte(string(s)), nil }

// TaskRequest is the raw body of a deployment request, before validation. The validate
// tags are checked after the secret and after surrounding whitespace is trimmed.
type TaskRequest struct {
	Task        string   `json:"task" validate:"required"`
	RepoName    string   `json:"repoName,omitempty" validate:"omitempty,max=100,ne=.,ne=..,reponame"`
	CallbackURL string   `json:"callbackUrl,omitempty" validate:"omitempty,http_url"`
	Secret      string   `json:"secret"`
	Checks      []string `json:"checks,omitempty"`
	Round       int      `json:"round,omitempty" validate:"min=0"`
	Nonce       string   `json:"nonce,omitempty"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email"`
}

// TaskBrief is a validated deployment request. It is never mutated after validation.
type TaskBrief struct {
	Task        string   `json:"task"`
	RepoName    string   `json:"repoName,omitempty"`
	CallbackURL string   `json:"callbackUrl,omitempty"`
	Checks      []string `json:"checks,omitempty"`
	Round       int      `json:"round,omitempty"`
	Nonce       string   `json:"nonce,omitempty"`
	Email       string   `json:"email,omitempty"`
}

// GeneratedArtifactSet maps repository-relative paths to file contents.
type GeneratedArtifactSet struct {
	Files   map[string]string `json:"files"`
	Summary string            `json:"summary,omitempty"`
}

// Paths returns the file paths in lexical order.
func (a GeneratedArtifactSet) Paths() []string {
	paths := make([]string, 0, len(a.Files))
	for p := range a.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WithDefaults returns a copy that also carries every file in extra whose path is not
// already present. Generated content always wins.
func (a GeneratedArtifactSet) WithDefaults(extra map[string]string) GeneratedArtifactSet {
	files := make(map[string]string, len(a.Files)+len(extra))
	for p, c := range extra {
		files[p] = c
	}
	for p, c := range a.Files {
		files[p] = c
	}
	return GeneratedArtifactSet{Files: files, Summary: a.Summary}
}

type StepRecord struct {
	Name    StepName `json:"name"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
}

// DeploymentResult is the terminal record returned to the caller.
type DeploymentResult struct {
	ID         string           `json:"id"`
	Status     DeploymentStatus `json:"status"`
	Repository string           `json:"repository,omitempty"`
	RepoURL    string           `json:"repoUrl,omitempty"`
	HTMLURL    string           `json:"htmlUrl,omitempty"`
	CommitSHA  string           `json:"commitSha,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Steps      []StepRecord     `json:"steps"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Record appends the outcome of a step. A nil err marks the step successful.
func (r *DeploymentResult) Record(name StepName, err error) {
	rec := StepRecord{Name: name, Success: err == nil}
	if err != nil {
		rec.Error = err.Error()
	}
	r.Steps = append(r.Steps, rec)
}

// Succeeded reports whether the named step was recorded as successful.
func (r *DeploymentResult) Succeeded(name StepName) bool {
	for _, s := range r.Steps {
		if s.Name == name {
			return s.Success
		}
	}
	return false
}

// Finalize derives Status from the recorded steps. Success requires every pipeline step;
// a created repository without the rest is partial.
func (r *DeploymentResult) Finalize() {
	all := true
	for _, name := range PipelineSteps {
		if !r.Succeeded(name) {
			all = false
			break
		}
	}
	switch {
	case all:
		r.Status = StatusSuccess
	case r.Succeeded(StepCreate):
		r.Status = StatusPartial
	default:
		r.Status = StatusError
	}
	if r.Steps == nil {
		r.Steps = []StepRecord{}
	}
}

// Repository identifies a repository on the hosting oracle.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	HTMLURL       string `json:"htmlUrl"`
}

func (r Repository) FullName() string { return r.Owner + "/" + r.Name }

type PagesSite struct {
	URL            string `json:"url"`
	Status         string `json:"status,omitempty"`
	Branch         string `json:"branch,omitempty"`
	Path           string `json:"path,omitempty"`
	AlreadyEnabled bool   `json:"alreadyEnabled,omitempty"`
}

type WorkflowRun struct {
	ID         int64     `json:"id"`
	WorkflowID int64     `json:"workflowId"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	HTMLURL    string    `json:"htmlUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DeploymentReport describes the live hosting state of a previously published repository.
type DeploymentReport struct {
	Repository   string        `json:"repository"`
	PagesURL     string        `json:"pagesUrl"`
	PagesStatus  string        `json:"pagesStatus"`
	WorkflowRuns []WorkflowRun `json:"workflowRuns"`
}
