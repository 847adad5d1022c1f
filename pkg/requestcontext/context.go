// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; services and workers read them without importing net/http.
//
//	now := requestcontext.Now(ctx)
//	actor := requestcontext.Actor(ctx)
//
// Tests inject a fixed clock with WithTime.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	actorKey       struct{}
	requestTimeKey struct{}
)

// DefaultActor is recorded in audit trails when no operator is attached to the context.
const DefaultActor = "system"

// RequestID returns the request ID or an empty string.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Actor returns the operator responsible for the current action, or DefaultActor.
func Actor(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}

// WithActor attaches the operator identifier used for audit trails.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() when unset (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Workers use it to keep one "now" per
// batch; tests use it to pin the clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
