// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
	// TenantIDKey is the context key for the tenant (company) ID
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps a sugared zap logger and keeps the key/value call style
// (log.Info("msg", "key", value)) used throughout the codebase.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New creates a new logger based on environment.
// Development uses a console encoder at debug level; everything else emits JSON.
func New(env string) *Logger {
	return NewWithLevel(env, "info")
}

// NewWithLevel creates a logger with an explicit minimum level for non-development environments.
func NewWithLevel(env, level string) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(env, "development") {
		lvl = zapcore.DebugLevel
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(zapcore.Lock(os.Stdout)), lvl)
	return &Logger{sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Debug logs at debug level with alternating key/value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }

// Info logs at info level with alternating key/value pairs.
func (l *Logger) Info(msg string, keysAndValues ...any) { l.sugar.Infow(msg, keysAndValues...) }

// Warn logs at warn level with alternating key/value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...any) { l.sugar.Warnw(msg, keysAndValues...) }

// Error logs at error level with alternating key/value pairs.
func (l *Logger) Error(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// WithContext returns a logger with context values extracted.
// Supports request_id, user_id, and tenant_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		newLogger = newLogger.WithUserID(userID)
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = newLogger.With("tenant_id", tenantID)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With("request_id", requestID)
}

// WithUserID returns a logger with user ID
func (l *Logger) WithUserID(userID string) *Logger {
	return l.With("user_id", userID)
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latencyMs,
		"client_ip", clientIP,
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		"method", method,
		"path", path,
		"status", status,
		"error", err.Error(),
		"client_ip", clientIP,
	)
}

// AuthEvent logs authentication events
func (l *Logger) AuthEvent(event, email string, success bool, reason string) {
	if success {
		l.Info("auth_event", "event", event, "email", email, "success", success)
		return
	}
	l.Warn("auth_event", "event", event, "email", email, "success", success, "reason", reason)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error", "operation", operation, "error", err.Error())
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", "client_ip", clientIP, "path", path)
}

// SideEffectFailure logs a failed secondary effect (audit append, notification)
// that ran after a committed primary mutation. It never changes the caller's outcome.
func (l *Logger) SideEffectFailure(effect string, err error, keysAndValues ...any) {
	kv := append([]any{"effect", effect, "error", err.Error()}, keysAndValues...)
	l.Error("side_effect_failure", kv...)
}
