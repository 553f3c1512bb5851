package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for control API request IDs.
	RequestIDKey contextKey = "request_id"

	// CycleKey is the context key for the identifier of one monitor,
	// supervisor or watchdog iteration.
	CycleKey contextKey = "cycle"

	// SourceKey is the context key for the data source a call is made for.
	SourceKey contextKey = "source"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithCycle tags the context with a loop iteration identifier.
func WithCycle(ctx context.Context, cycle string) context.Context {
	return context.WithValue(ctx, CycleKey, cycle)
}

// GetCycle retrieves the loop iteration identifier from the context.
func GetCycle(ctx context.Context) string {
	if cycle, ok := ctx.Value(CycleKey).(string); ok {
		return cycle
	}
	return ""
}

// WithSource adds a data source name to the context.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// GetSource retrieves the data source name from the context.
func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(SourceKey).(string); ok {
		return source
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if cycle := GetCycle(ctx); cycle != "" {
		fields = append(fields, "cycle", cycle)
	}
	if source := GetSource(ctx); source != "" {
		fields = append(fields, "source", source)
	}
	return fields
}

// FromContext returns logger annotated with the fields carried by ctx.
// A nil logger falls back to slog.Default().
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if fields := extractContextFields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}
