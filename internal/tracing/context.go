package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for the per-request ID
	RequestIDKey ContextKey = "request_id"
	// SessionIDKey is the context key for the session identifier
	SessionIDKey ContextKey = "session_id"
)

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSessionID adds a session identifier to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSessionID retrieves the session identifier from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// NewRequestContext creates a context for an inbound request with a
// fresh request ID.
func NewRequestContext(ctx context.Context) context.Context {
	return WithRequestID(ctx, NewRequestID())
}

// LoggerFromContext creates a logger carrying the tracing fields from
// the given context.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if requestID := GetRequestID(ctx); requestID != "" {
		baseLogger = baseLogger.With().Str("request_id", requestID).Logger()
	}
	if sessionID := GetSessionID(ctx); sessionID != "" {
		baseLogger = baseLogger.With().Str("session_id", sessionID).Logger()
	}
	return baseLogger
}
