// Package observability builds the logger and Prometheus metrics shared by
// the player and the CLI.
package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns a JSON logger writing to w (stdout when nil) at the
// named level. Unknown levels fall back to info.
func NewLogger(level string, w io.Writer) *zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &logger
}

// ParseLevel maps debug, info, warn and error to zerolog levels.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether level is one NewLogger understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
