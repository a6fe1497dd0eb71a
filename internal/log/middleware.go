package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type ctxKey struct{}

// Middleware seeds every request context with logger. Later middleware
// enriches it through WithContext.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), logger)))
		})
	}
}

// FromContext returns the request logger, or the default logger tagged
// "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return wrap(slog.Default(), "unknown")
}

// WithContext stores logger in ctx for FromContext.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// StructuredLogger writes the records every component emits the same way:
// request lifecycles, ledger writes and failures.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	if logger == nil {
		logger = Default()
	}
	return &StructuredLogger{logger: logger}
}

// LogRequestStart is a debug record; the completion record carries the
// fields operators look at.
func (sl *StructuredLogger) LogRequestStart(ctx context.Context, r *http.Request, clientIP string) {
	sl.logger.DebugContext(ctx, "HTTP request started",
		FieldMethod, r.Method,
		FieldPath, r.URL.Path,
		FieldQuery, r.URL.RawQuery,
		FieldClientIP, clientIP,
		FieldUserAgent, r.UserAgent(),
		FieldReferer, r.Referer())
}

// LogRequestEnd logs at warn for 4xx and error for 5xx.
func (sl *StructuredLogger) LogRequestEnd(ctx context.Context, r *http.Request, status int, elapsed time.Duration, clientIP string) {
	sl.logger.Log(ctx, levelForStatus(status), "HTTP request completed",
		FieldMethod, r.Method,
		FieldPath, r.URL.Path,
		FieldStatusCode, status,
		FieldDuration, elapsed.Milliseconds(),
		FieldDurationHuman, elapsed.String(),
		FieldClientIP, clientIP,
		FieldSuccess, status < 400)
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

var writeMessages = map[string]string{
	"create": "Transaction created",
	"update": "Transaction updated",
	"delete": "Transaction deleted",
}

// LogTransactionWrite records a completed ledger write. Titles and memos
// stay out of the logs.
func (sl *StructuredLogger) LogTransactionWrite(ctx context.Context, op, userID, txID, txType string, amount int64, date string) {
	msg, ok := writeMessages[op]
	if !ok {
		msg = "Transaction written"
	}
	fields := NewFields().
		WithTransaction(userID, txID, txType, amount, date).
		WithOperation(op)
	sl.logger.InfoContext(ctx, msg, fields.ToSlice()...)
}

// LogError tags the record with component, which may differ from the
// logger's own.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields = fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}
