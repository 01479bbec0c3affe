// Package bushilog wires charmbracelet/log in as the slog.Handler every
// logger in this module uses.
package bushilog

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// NewHandler builds a charmbracelet/log handler at level, prefixed name.
func NewHandler(name string, level log.Level) slog.Handler {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           level,
	})
}

// New builds a *slog.Logger prefixed name at level.
func New(name string, level log.Level) *slog.Logger {
	return slog.New(NewHandler(name, level))
}

// ParseLevel maps a config.Tuning.LogLevel string to a charmbracelet/log
// level, defaulting to InfoLevel on anything unrecognized.
func ParseLevel(s string) log.Level {
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func NewContext(ctx context.Context, name string, level log.Level) context.Context {
	return IntoContext(ctx, New(name, level))
}

type ctxKey struct{}

// IntoContext attaches a logger to ctx; pull it back out with FromContext.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or slog.Default() if
// ctx is nil or carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if v := ctx.Value(ctxKey{}); v != nil {
			return v.(*slog.Logger)
		}
	}
	return slog.Default()
}

// SubLogger derives a logger from base by appending suffix to its
// charmbracelet/log prefix, e.g. for per-repository log lines during a
// sync ("bushi" -> "bushi/acme").
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(NewHandler(prefix, cl.GetLevel()))
	}
	return slog.New(NewHandler(suffix, log.InfoLevel))
}
