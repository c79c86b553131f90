// Package telemetry provides the engine core's structured logging surface,
// following 99souls/ariadne's engine/telemetry/logging correlation wrapper:
// a thin interface over log/slog so callers (shutdown, adaptive, exporter)
// depend on a two-method contract rather than the concrete slog type.
package telemetry

import (
	"context"
	"log/slog"
)

// Logger is the minimal structured-logging capability the engine core and
// its collaborators depend on.
type Logger interface {
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
}

type slogLogger struct{ base *slog.Logger }

// New wraps base in a Logger. A nil base falls back to slog.Default().
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{base: base}
}

func (l *slogLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, attrs...)
}

func (l *slogLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, attrs...)
}
