// Package logging configures the global zerolog logger and the structured
// summary event emitted when a training run starts.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel selects the log level: debug, info, warn, error (default: info).
const EnvLogLevel = "VIDEO_LEARNING_LOG_LEVEL"

// Init initializes the global logger with a console writer on stderr and the
// level from VIDEO_LEARNING_LOG_LEVEL.
func Init() {
	InitWithWriter(os.Stderr)
}

// InitWithWriter is Init writing to w instead of stderr.
func InitWithWriter(w io.Writer) {
	zerolog.SetGlobalLevel(levelFromEnv(os.Getenv(EnvLogLevel)))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

func levelFromEnv(value string) zerolog.Level {
	switch value {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
