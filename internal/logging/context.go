package logging

import "context"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are attached to every record logged with a context that carries them.
type Fields struct {
	RequestID    string
	DeploymentID string
	Repository   string
}

// WithFields merges f into the fields already on ctx; non-empty values win.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FieldsFrom(ctx)
	if f.RequestID != "" {
		cur.RequestID = f.RequestID
	}
	if f.DeploymentID != "" {
		cur.DeploymentID = f.DeploymentID
	}
	if f.Repository != "" {
		cur.Repository = f.Repository
	}
	return context.WithValue(ctx, fieldsKey, cur)
}

func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	return FieldsFrom(ctx).RequestID
}
