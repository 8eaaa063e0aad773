package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Service is attached to every record.
const Service = "callcenter-api"

// New returns the process logger: JSON on stdout, debug for local and dev.
func New(appEnv string) *slog.Logger {
	return NewWriter(os.Stdout, appEnv)
}

func NewWriter(w io.Writer, appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", Service, "env", appEnv)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
