// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stderr, "info")
}

// NewLogger builds a JSON logger writing to w at the named level.
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// SetupDefault replaces GlobalLogger and the slog default.
func SetupDefault(w io.Writer, level string) *Logger {
	GlobalLogger = NewLogger(w, level)
	slog.SetDefault(GlobalLogger.Logger)
	return GlobalLogger
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	RequestID LogContextKey = "request_id"
)

// WithRequestID returns a new context carrying the outbound request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestID, id)
}

// ExtractRequestID retrieves the request ID from the context.
func ExtractRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestID).(string); ok {
		return id
	}
	return ""
}

// ComponentLogger returns a child of base tagged with the component name.
// A nil base uses GlobalLogger.
func ComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = GlobalLogger.Logger
	}
	return base.With(slog.String("component", component))
}

// SessionLogger provides structured logging for session transitions.
type SessionLogger struct {
	logger *slog.Logger
}

// NewSessionLogger creates a SessionLogger around base.
func NewSessionLogger(base *slog.Logger) *SessionLogger {
	return &SessionLogger{logger: ComponentLogger(base, "session")}
}

// LogTransition logs a session state change.
func (l *SessionLogger) LogTransition(ctx context.Context, event string, loggedIn bool, userID string) {
	l.logger.InfoContext(ctx, "session transition",
		slog.String("event", event),
		slog.Bool("logged_in", loggedIn),
		slog.String("user_id", userID),
	)
}

// LogDegraded logs a credential that was dropped instead of surfacing an error.
func (l *SessionLogger) LogDegraded(ctx context.Context, reason string, err error) {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.WarnContext(ctx, "credential degraded to anonymous", attrs...)
}

// LogError logs a failure that did not change the outcome of the operation.
func (l *SessionLogger) LogError(ctx context.Context, operation string, err error) {
	l.logger.ErrorContext(ctx, "session error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RequestLogger provides structured logging for outbound backend calls.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a RequestLogger around base.
func NewRequestLogger(base *slog.Logger) *RequestLogger {
	return &RequestLogger{logger: ComponentLogger(base, "gateway")}
}

// LogRequest logs a completed request at debug level.
func (l *RequestLogger) LogRequest(ctx context.Context, method, path string, status int, authenticated bool) {
	l.logger.DebugContext(ctx, "backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Bool("authenticated", authenticated),
		slog.String("request_id", ExtractRequestID(ctx)),
	)
}

// LogTransportError logs a request that never produced a response.
func (l *RequestLogger) LogTransportError(ctx context.Context, method, path string, err error) {
	l.logger.ErrorContext(ctx, "backend request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error", err.Error()),
		slog.String("request_id", ExtractRequestID(ctx)),
	)
}
