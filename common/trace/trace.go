// Package trace carries a per-request correlation id through context so log
// lines emitted by the API, the dispatcher and the gateway can be joined.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used to accept and echo a caller-supplied id.
const Header = "X-Trace-Id"

type traceKey struct{}

// GenerateID returns a new trace id.
func GenerateID() string {
	return "t_" + uuid.NewString()
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace id from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already has a trace id, otherwise a
// child context with a fresh one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateID()
	return WithTraceID(ctx, id), id
}
