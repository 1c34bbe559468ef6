package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	requestKey
	loggerKey
)

// maxIDLen bounds session and request IDs, which may come from HTTP headers.
const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ContextFields returns the correlation fields carried by ctx: the OTEL
// trace and span IDs, the embedding session ID and the request ID.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := SessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("session.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// IsValidID reports whether id is accepted by WithSessionID and WithRequestID:
// 1 to 128 ASCII letters, digits, hyphens or underscores.
func IsValidID(id string) bool {
	return len(id) > 0 && len(id) <= maxIDLen && idPattern.MatchString(id)
}

func mustValidID(kind, id string) {
	if !IsValidID(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", kind, truncateID(id)))
	}
}

func truncateID(id string) string {
	if len(id) > 32 {
		return id[:32] + "..."
	}
	return id
}

// WithSessionID tags ctx with an embedding session ID.
// Panics if the ID is not valid per IsValidID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	mustValidID("session ID", sessionID)
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionIDFromContext returns the session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// WithRequestID tags ctx with an HTTP request ID.
// Panics if the ID is not valid per IsValidID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	mustValidID("request ID", requestID)
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestKey).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
