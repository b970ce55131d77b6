package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStepNameMarshalText(t *testing.T) {
	tests := []struct {
		name string
		step StepName
		want string
	}{
		{"generate", StepGenerate, "generate"},
		{"create", StepCreate, "create"},
		{"commit", StepCommit, "commit"},
		{"pages", StepPages, "pages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.step.MarshalText()
			if err != nil {
				t.Fatalf("MarshalText() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("MarshalText() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestDeploymentResultFinalize(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		steps func(r *DeploymentResult)
		want  DeploymentStatus
	}{
		{
			name: "all steps succeed",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, nil)
				r.Record(StepCreate, nil)
				r.Record(StepCommit, nil)
				r.Record(StepPages, nil)
			},
			want: StatusSuccess,
		},
		{
			name: "generation fails",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, boom)
			},
			want: StatusError,
		},
		{
			name: "create fails",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, nil)
				r.Record(StepCreate, boom)
			},
			want: StatusError,
		},
		{
			name: "commit fails after create",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, nil)
				r.Record(StepCreate, nil)
				r.Record(StepCommit, boom)
			},
			want: StatusPartial,
		},
		{
			name: "pages fails",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, nil)
				r.Record(StepCreate, nil)
				r.Record(StepCommit, nil)
				r.Record(StepPages, boom)
			},
			want: StatusPartial,
		},
		{
			name: "missing pages step is never success",
			steps: func(r *DeploymentResult) {
				r.Record(StepGenerate, nil)
				r.Record(StepCreate, nil)
				r.Record(StepCommit, nil)
			},
			want: StatusPartial,
		},
		{
			name:  "no steps",
			steps: func(r *DeploymentResult) {},
			want:  StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r DeploymentResult
			tt.steps(&r)
			r.Finalize()
			if r.Status != tt.want {
				t.Errorf("Finalize() status = %v, want %v", r.Status, tt.want)
			}
			if r.Steps == nil {
				t.Errorf("expected non-nil steps slice")
			}
		})
	}
}

func TestDeploymentResultRecordKeepsError(t *testing.T) {
	var r DeploymentResult
	r.Record(StepCommit, &PublishError{Step: StepCommit, Path: "index.html", Err: errors.New("422")})
	if len(r.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(r.Steps))
	}
	if r.Steps[0].Success {
		t.Fatalf("expected failed step")
	}
	if r.Steps[0].Error != "publish commit failed for index.html: 422" {
		t.Fatalf("unexpected error text %q", r.Steps[0].Error)
	}
}

func TestArtifactSetWithDefaults(t *testing.T) {
	set := GeneratedArtifactSet{
		Files:   map[string]string{"index.html": "<p>hi</p>", "README.md": "model readme"},
		Summary: "s",
	}
	merged := set.WithDefaults(map[string]string{"README.md": "scaffold", "LICENSE": "MIT"})

	if merged.Files["README.md"] != "model readme" {
		t.Errorf("generated file should win, got %q", merged.Files["README.md"])
	}
	if merged.Files["LICENSE"] != "MIT" {
		t.Errorf("expected scaffold LICENSE")
	}
	if _, ok := set.Files["LICENSE"]; ok {
		t.Errorf("WithDefaults must not mutate the receiver")
	}
	want := []string{"LICENSE", "README.md", "index.html"}
	got := merged.Paths()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	var genErr *GenerationError
	if !errors.As(fmt.Errorf("wrapped: %w", &GenerationError{Reason: "oracle unreachable", Err: cause}), &genErr) {
		t.Fatalf("expected GenerationError via errors.As")
	}
	if !errors.Is(genErr, cause) {
		t.Fatalf("expected GenerationError to unwrap cause")
	}

	pubErr := &PublishError{Step: StepPages, Err: cause}
	if !errors.Is(pubErr, cause) {
		t.Fatalf("expected PublishError to unwrap cause")
	}
	if pubErr.Error() != "publish pages failed: dial tcp: refused" {
		t.Fatalf("unexpected message %q", pubErr.Error())
	}
}

func TestValidationErrorUnauthorized(t *testing.T) {
	if !(&ValidationError{Field: "secret", Reason: "incorrect"}).Unauthorized() {
		t.Errorf("secret rejection should be unauthorized")
	}
	if (&ValidationError{Field: "task", Reason: "required"}).Unauthorized() {
		t.Errorf("task rejection should not be unauthorized")
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := &ConfigurationError{Missing: []string{"ai api key", "hosting token"}}
	if err.Error() != "service not configured: missing ai api key, hosting token" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
