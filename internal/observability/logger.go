// Package observability provides structured logging, metrics, and health checks
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelDebug, LevelWarn, LevelError:
		return LogLevel(s)
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides structured logging with correlation IDs
type Logger struct {
	zl        *zap.Logger
	level     zap.AtomicLevel
	component string
}

// NewLogger creates a JSON logger writing to stdout
func NewLogger(component string) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return &Logger{
		zl:        zap.New(newJSONCore(os.Stdout, level)).With(zap.String("component", component)),
		level:     level,
		component: component,
	}
}

// NewZapLogger wraps an existing zap logger, e.g. zaptest.NewLogger(t) in tests.
func NewZapLogger(zl *zap.Logger, component string) *Logger {
	return &Logger{
		zl:        zl.With(zap.String("component", component)),
		level:     zap.NewAtomicLevelAt(zapcore.DebugLevel),
		component: component,
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func newJSONCore(w io.Writer, level zap.AtomicLevel) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level)
}

// WithOutput sets the output writer for the logger
func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.zl = zap.New(newJSONCore(w, l.level)).With(zap.String("component", l.component))
	return l
}

// WithLevel sets the minimum log level
func (l *Logger) WithLevel(level LogLevel) *Logger {
	l.level.SetLevel(level.zapLevel())
	return l
}

// Component returns a logger sharing this logger's sink under another component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		zl:        l.zl.With(zap.String("subcomponent", name)),
		level:     l.level,
		component: l.component,
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) fields(ctx context.Context, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	if ctx != nil {
		if correlationID := GetCorrelationID(ctx); correlationID != "" {
			out = append(out, zap.String("correlation_id", correlationID))
		}
		if userID := GetUserID(ctx); userID != "" {
			out = append(out, zap.String("user_id", userID))
		}
	}
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.zl.Debug(message, l.fields(ctx, fields)...)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.zl.Info(message, l.fields(ctx, fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.zl.Warn(message, l.fields(ctx, fields)...)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	zf := l.fields(ctx, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zl.Error(message, zf...)
}

// WithOperation logs the start and end of an operation
func (l *Logger) WithOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	if GetCorrelationID(ctx) == "" {
		ctx = WithCorrelationID(ctx, uuid.New().String())
	}

	l.Info(ctx, fmt.Sprintf("Starting operation: %s", operation), map[string]interface{}{
		"operation": operation,
	})

	err := fn(ctx)

	fields := map[string]interface{}{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		l.Error(ctx, fmt.Sprintf("Operation failed: %s", operation), err, fields)
		return err
	}

	l.Info(ctx, fmt.Sprintf("Operation completed: %s", operation), fields)
	return nil
}

// Context keys for storing values in context
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	userIDKey        contextKey = "user_id"
)

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from the context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
