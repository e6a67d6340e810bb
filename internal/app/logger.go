package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the run logger from the validated config. It does not set
// the global logger, so concurrent apps in tests stay isolated.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(outW, opts)
	default:
		handler = slog.NewTextHandler(outW, opts)
	}

	logger := slog.New(handler)
	if cfg.Repository != "" {
		logger = logger.With("repository", cfg.Repository)
	}
	return logger
}
