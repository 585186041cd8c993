// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession returns a component logger bound to a pipeline session.
func WithSession(component, sessionID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("sessionId", sessionID).
		Logger()
}

// WithTick returns a logger with pipeline tick context.
func WithTick(sessionID string, tick uint64) zerolog.Logger {
	return log.With().
		Str("component", "pipeline").
		Str("sessionId", sessionID).
		Uint64("tick", tick).
		Logger()
}

// WithSpeaker returns a component logger with speaker context.
func WithSpeaker(component string, speakerID int) zerolog.Logger {
	return log.With().
		Str("component", component).
		Int("speakerId", speakerID).
		Logger()
}
