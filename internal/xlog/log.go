// Package xlog provides the structured logger used across expgrid,
// a slog.Logger backed by a charmbracelet/log handler.
package xlog

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// NewHandler builds a charmbracelet/log handler prefixed with name.
func NewHandler(name string) slog.Handler {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           log.InfoLevel,
	})
}

// New returns a logger prefixed with name.
func New(name string) *slog.Logger {
	return slog.New(NewHandler(name))
}

type ctxKey struct{}

// IntoContext attaches l to ctx.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default logger
// if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if v := ctx.Value(ctxKey{}); v != nil {
			return v.(*slog.Logger)
		}
	}
	return slog.Default()
}

// Sub derives a new logger from base by appending suffix to its prefix,
// used to tag per-worker loggers ("worker/w3-1a2b3c4d").
func Sub(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(NewHandler(prefix))
	}
	return slog.New(NewHandler(suffix))
}
