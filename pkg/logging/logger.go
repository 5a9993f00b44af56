// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names attached to every log line of a subsystem.
const (
	ComponentCLI       = "cli"
	ComponentTransport = "transport"
	ComponentCache     = "cache"
	ComponentFetcher   = "fetcher"
	ComponentWriter    = "writer"
	ComponentPipeline  = "pipeline"
	ComponentMirror    = "mirror"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from flags or configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key)
//   - Politeness pauses
//   - Individual request URLs
//
// Info: Normal operation events
//   - Window start, skip and completion
//   - Page progress (rows in page, running total)
//   - Artifacts written and mirrored
//   - Run summaries
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Cache errors (fallback to direct request)
//   - Mirror failures
//   - Runs finishing with failed windows
//
// Error: Error conditions requiring attention
//   - Failed windows (after transport retries)
//   - Artifact write failures
//   - Configuration errors
//
// Context Fields:
//   - run_id: Identifier of one pipeline run
//   - source: Data source (requests, weather)
//   - window: Window range, e.g. 2024-01-01_to_2024-01-31
//   - offset: Page offset within a window
//   - rows / total: Rows in a page and accumulated rows
//   - path: Artifact path
//   - attempt: Transport attempt number
//   - error_class: Error classification (client, server, rate_limit, network)
