// Package logging configures structured logging with zerolog.
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
	// LevelTrace additionally logs every throttle decision.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Wiki is attached to every entry as "wiki" when set.
	Wiki string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. An unknown level falls back
// to info.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Wiki != "" {
		ctx = ctx.Str("wiki", cfg.Wiki)
	}
	logger := ctx.Logger()

	log.Logger = logger
	if err != nil {
		logger.Warn().Str("level", string(cfg.Level)).Msg("Unknown log level, using info")
	}

	return logger
}

// ParseLevel converts a level name to zerolog.Level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(level))) {
	case LevelTrace:
		return zerolog.TraceLevel, nil
	case LevelDebug:
		return zerolog.DebugLevel, nil
	case LevelInfo, "":
		return zerolog.InfoLevel, nil
	case LevelWarn, "warning":
		return zerolog.WarnLevel, nil
	case LevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Trace: Throttle decisions for every request
//
// Debug: Detailed information for debugging
//   - Throttle waits (wait duration, quota)
//   - Request dispatch (action, method)
//   - Batch delivery (cursor, last batch)
//
// Info: Normal operation events
//   - Login/logout
//   - Purge progress per batch
//   - Checkpoint resume
//   - Run start/completion
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts (malformed body, rate limit warning, missing batchcomplete)
//   - Pages the wiki did not purge
//   - Checkpoint store errors
//
// Error: Error conditions requiring attention
//   - Retry attempts exhausted
//   - Login failures
//   - Aborted runs
//
// Context Fields:
//   - component: throttle, wiki-client, traversal, purger, cli
//   - action: API action (query, purge, login)
//   - error_class: Error classification (server, rate_limit, malformed, incomplete, network)
//   - attempt: Attempt number within one logical request
//   - run_id: Purge run identifier
//   - cursor: Continuation cursor
//   - wait: Throttle wait duration
