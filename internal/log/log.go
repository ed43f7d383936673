// Package log provides structured logging for the transport backends.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	// Console writer for human-readable output
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    false,
	}

	logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()

	// Quiet by default: scan output goes to stdout and must stay readable
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if level, err := zerolog.ParseLevel(lvl); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}
}

// SetOutput sets the logger output destination
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// WithHost returns a child logger tagged with the host label.
func WithHost(host string) zerolog.Logger {
	return logger.With().Str("host", host).Logger()
}
