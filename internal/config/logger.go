package config

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger: human-readable text in dev, JSON
// everywhere else.  LOG_LEVEL accepts debug, info, warn or error.
func NewLogger(env string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(envStr("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
