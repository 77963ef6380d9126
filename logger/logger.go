package logger

import (
	"fmt"
	"os"

	"github.com/honeycombio/firehose/config"
)

type Logger interface {
	Debug() Entry
	Info() Entry
	Warn() Entry
	Error() Entry
	// SetLevel sets the logging level (debug, info, warn, error)
	SetLevel(level string) error
}

type Entry interface {
	WithField(key string, value any) Entry

	// WithString does the same thing as WithField, but is more efficient for
	// disabled log levels.
	WithString(key string, value string) Entry

	WithFields(fields map[string]any) Entry
	Logf(f string, args ...any)
}

func GetLoggerImplementation(c config.Config) Logger {
	var logger Logger
	switch loggerType := c.GetLoggerType(); loggerType {
	case "stdout":
		logger = &LogrusLogger{}
	case "none":
		logger = &NullLogger{}
	default:
		fmt.Fprintf(os.Stderr, "unknown logger type %s. Exiting.\n", loggerType)
		os.Exit(1)
	}
	return logger
}
