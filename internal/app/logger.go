package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration.
// Production uses JSON with source locations; development keeps plain text.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
