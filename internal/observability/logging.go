// Package observability carries per-build log context through context.Context.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// LogContext holds the structured logging context of a build.
type LogContext struct {
	BuildID    string
	Generation uint64
	Mode       string
	Stage      string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithBuildID adds a build ID to the context.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	lc := extractLogContext(ctx)
	lc.BuildID = buildID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithGeneration adds a build generation to the context.
func WithGeneration(ctx context.Context, gen uint64) context.Context {
	lc := extractLogContext(ctx)
	lc.Generation = gen
	return context.WithValue(ctx, logContextKey, lc)
}

// WithMode adds the build mode to the context.
func WithMode(ctx context.Context, mode string) context.Context {
	lc := extractLogContext(ctx)
	lc.Mode = mode
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// Attrs returns the non-empty fields of the log context of ctx.
func Attrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.BuildID != "" {
		attrs = append(attrs, logfields.BuildID(lc.BuildID))
	}
	if lc.Generation != 0 {
		attrs = append(attrs, logfields.Generation(lc.Generation))
	}
	if lc.Mode != "" {
		attrs = append(attrs, logfields.Mode(lc.Mode))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	return attrs
}

// Logger returns base annotated with the log context of ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := Attrs(ctx)
	if len(attrs) == 0 {
		return base
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return base.With(args...)
}

// InfoContext logs an info message with the context's build fields.
func InfoContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, logger, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning with the context's build fields.
func WarnContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, logger, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error with the context's build fields.
func ErrorContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, logger, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with the context's build fields.
func DebugContext(ctx context.Context, logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, logger, slog.LevelDebug, msg, attrs)
}

func logAttrs(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, attrs []slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	all := append(Attrs(ctx), attrs...)
	logger.LogAttrs(ctx, level, msg, all...)
}
