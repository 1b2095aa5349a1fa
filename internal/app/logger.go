package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger: JSON when LOG_FORMAT=json, human
// readable text otherwise. Every record carries the application name.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("app", "campusworks"))
}
