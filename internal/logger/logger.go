package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	Output     string // stdout, stderr, or a file path
}

func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Output:     "stdout",
	}
}

// Setup replaces the global logger. The returned closer releases the
// log file when Output is a path; it is a no-op otherwise.
func Setup(config LogConfig) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(config.Level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", config.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch config.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closer = file
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}
	if strings.EqualFold(config.Format, "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: config.TimeFormat}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return closer, nil
}

func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func WithRequestID(requestID string) zerolog.Logger {
	return log.Logger.With().Str("request_id", requestID).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
