package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/drblury/webviewflow/internal/runtime/logging"
)

// newLogger builds the service logger. Unknown levels fall back to info and
// unknown formats to text.
func newLogger(level, format string, w io.Writer) logging.ServiceLogger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return logging.NewSlogServiceLogger(slog.New(handler))
}
