package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the process logger.
type Options struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
}

// New builds a slog.Logger from options. The returned LevelVar can be used to
// change the level at runtime.
func New(opts Options) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	level.Set(ParseLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), level
}

// ParseLevel converts a string log level to slog.Level.
// Accepts: debug, info, warn, error (case-insensitive).
// Returns slog.LevelInfo if the level is not recognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
