// Package sysutil holds small process-level helpers shared by main and the
// services.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
// Matching is case-insensitive, "warning" is accepted for warn, and empty or
// unknown values fall back to info.
func SetLogLevel(lvl string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// NewLogger returns the process logger writing JSON lines to w, or a
// human-readable console rendering when pretty is set.
func NewLogger(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
