// Package logging configures the process-wide zerolog logger.
//
// Library packages never call Setup; they take a zerolog.Logger from the
// composition root (usually Component(name)).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config - уровень и формат вывода
type Config struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // trace, debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // console (по умолчанию) или json
}

// Setup настраивает глобальный log.Logger
func Setup(cfg Config) error {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter - Setup с произвольным writer (для тестов)
func SetupWriter(cfg Config, out io.Writer) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	case "json":
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return nil
}

// Component возвращает sub-logger с полем component
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
