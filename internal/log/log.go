// Package log constructs structured loggers and carries them through a context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// NewHandler returns a text handler writing to w which tags every record with name.
func NewHandler(w io.Writer, name string, level slog.Level) slog.Handler {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	if name == "" {
		return h
	}
	return h.WithAttrs([]slog.Attr{slog.String("component", name)})
}

// New returns a logger writing to stderr at info level.
func New(name string) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, name, slog.LevelInfo))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey struct{}

// IntoContext adds a logger to a context. Use FromContext to
// pull the logger out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns a logger from a context.Context;
// if the context carries no logger, the default slog logger is returned.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// SubLogger derives a logger from base that records suffix as its component.
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	return base.With(slog.String("component", suffix))
}
