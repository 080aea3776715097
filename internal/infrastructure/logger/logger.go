// Package logger contains logger infrastructure
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates a console logger at the given level
func New(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(level))

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().
		Timestamp().
		Caller().
		Logger()
}

// parseLogLevel parses log level string to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
