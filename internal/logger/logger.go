// Package logger constructs the service-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // debug, info, warn, error
	Environment string // development enables console output
	ServiceName string
	Version     string
}

// Logger wraps zerolog.Logger so call sites keep the fluent API.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger writing JSON to stdout (or console format in development).
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log := out.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: log}
}
