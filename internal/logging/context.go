package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestCtxKey struct{}

// WithRequestID attaches a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextFields extracts correlation fields from the context.
func ContextFields(ctx context.Context) []zap.Field {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return []zap.Field{zap.String("request.id", requestID)}
	}
	return nil
}
