package domain

import (
	"fmt"
	"strings"
)

// ValidationError is a client-caused rejection. No external call has been made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unauthorized reports whether the rejection concerns the shared secret.
func (e *ValidationError) Unauthorized() bool { return e.Field == "secret" }

// GenerationError means the AI oracle was unreachable or produced unusable output.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("generation failed: %v", e.Err)
	default:
		return "generation failed: " + e.Reason
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PublishError identifies the hosting step (and file, for commits) that failed.
type PublishError struct {
	Step StepName
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	msg := "publish " + string(e.Step) + " failed"
	if e.Path != "" {
		msg += " for " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

// ConfigurationError lists the credentials the process was started without.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "service not configured: missing " + strings.Join(e.Missing, ", ")
}
