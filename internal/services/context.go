package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	methodKey    contextKey = "method"
	sideKey      contextKey = "side"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMethod annotates context with the detection method requested for a job.
func WithMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, methodKey, method)
}

// MethodFromContext returns the detection method if present.
func MethodFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(methodKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSide annotates context with the pipeline side (audio, hand, combined)
// currently executing.
func WithSide(ctx context.Context, side string) context.Context {
	if side == "" {
		return ctx
	}
	return context.WithValue(ctx, sideKey, side)
}

// SideFromContext returns the pipeline side if present.
func SideFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sideKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
