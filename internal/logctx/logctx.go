package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey      contextKey = "logger"
	operationIDKey contextKey = "operation_id"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithOperationID tags the context with the operation being supervised.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext returns the operation id, or "" when the context has none.
func OperationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(operationIDKey).(string)
	return id
}
