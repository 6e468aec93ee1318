package common

import (
	"context"
	"time"
)

// ContextKey represents a context key type
type ContextKey string

// Context keys
const (
	ContextKeyActor         ContextKey = "actor"
	ContextKeyAuthenticated ContextKey = "authenticated"
	ContextKeyRequestID     ContextKey = "request_id"
	ContextKeyStartTime     ContextKey = "start_time"
)

// WithActor adds the acting actor IRI to context. Authenticated
// records whether the actor was established by a verified signature
// or token, as opposed to defaulting to the public actor.
func WithActor(ctx context.Context, actorIRI string, authenticated bool) context.Context {
	ctx = context.WithValue(ctx, ContextKeyActor, actorIRI)
	return context.WithValue(ctx, ContextKeyAuthenticated, authenticated)
}

// GetActor extracts the acting actor IRI from context.
func GetActor(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(string)
	return actor, ok
}

// IsAuthenticated reports whether the request actor was verified.
func IsAuthenticated(ctx context.Context) bool {
	v, ok := ctx.Value(ContextKeyAuthenticated).(bool)
	return ok && v
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}

// WithStartTime adds start time to context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyStartTime, startTime)
}

// GetStartTime extracts start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(ContextKeyStartTime).(time.Time)
	return startTime, ok
}

// GetElapsedTime calculates elapsed time from start time in context
func GetElapsedTime(ctx context.Context) time.Duration {
	if startTime, ok := GetStartTime(ctx); ok {
		return time.Since(startTime)
	}
	return 0
}
