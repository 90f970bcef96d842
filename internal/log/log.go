// Package log provides structured logging for platewatch.
// It wraps zerolog with sensible defaults for production use.
package log

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	once   sync.Once
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}

		// Console output in development, JSON otherwise
		if os.Getenv("GO_ENV") == "production" {
			logger = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
		} else {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
		}
	})
}

// L returns the global logger instance.
func L() zerolog.Logger {
	Init("info")
	return logger
}

// With returns a logger tagged with a component name.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// Debug logs at debug level.
func Debug() *zerolog.Event { l := L(); return l.Debug() }

// Info logs at info level.
func Info() *zerolog.Event { l := L(); return l.Info() }

// Warn logs at warn level.
func Warn() *zerolog.Event { l := L(); return l.Warn() }

// Error logs at error level.
func Error() *zerolog.Event { l := L(); return l.Error() }
