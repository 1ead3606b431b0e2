package logger

import "context"

type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores the request ID on the context so every log line
// emitted while serving that request can carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from the context, or "" when the call
// did not originate from the HTTP surface.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
