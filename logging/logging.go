// Package logging builds the server's structured loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below debug and carries per-chunk streaming detail and
// peer disconnects.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps "trace", "debug", "info", "warn" and "error"; anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a logger writing to stdout. format is "json" (default) or
// "text".
func New(level, format string) *slog.Logger {
	return NewWriter(os.Stdout, level, format)
}

func NewWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// WithComponent tags every record of l with component=name.
func WithComponent(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("component", name))
}

// Discard is a logger that drops everything, for tests and optional
// dependencies.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
