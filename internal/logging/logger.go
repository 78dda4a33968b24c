package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a production-friendly JSON logger writing to stdout unless
// LOG_FORMAT=console is provided to prefer a human-readable output. The
// minimum level defaults to info and can be lowered with LOG_LEVEL=debug.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format := os.Getenv("LOG_FORMAT"); format == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
