// Package logging builds the provider's logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a debug-level text logger on stderr when debug is set, and
// a logger that discards everything otherwise.
func New(debug bool) *slog.Logger {
	if !debug {
		return slog.New(slog.DiscardHandler)
	}
	return NewWriter(os.Stderr, slog.LevelDebug)
}

// NewWriter returns a text logger writing records at or above level to w.
func NewWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("component", "keyless")
}
