// Package logger builds the structured loggers used across the engine.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds configuration for structured logging.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	AddSource bool
	Output    io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// New creates a structured logger from the config.
func New(config Config) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromSettings builds a logger from the config file's log settings. When
// logFile is non-empty, output is appended there; open failures fall back
// to stderr.
func FromSettings(level, logFile string) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			cfg.Output = f
			cfg.Format = "json"
		}
	}
	return New(cfg)
}
