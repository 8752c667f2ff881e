// Package debuglog builds the component loggers used for tracing the lexer,
// parser and executor during development.
package debuglog

import (
	"io"
	"log/slog"
	"os"
)

// New returns a logger writing to stderr. Debug records are only emitted when
// the environment variable envVar is set to a non-empty value.
func New(envVar string) *slog.Logger {
	return NewWriter(os.Stderr, os.Getenv(envVar) != "")
}

// NewWriter returns a logger writing to w with time and level attributes
// stripped, enabled at Debug level when debug is true.
func NewWriter(w io.Writer, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove timestamp for cleaner trace output
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
