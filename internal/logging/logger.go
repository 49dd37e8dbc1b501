// Package logging builds the process-wide slog logger for folio-admin.
// Production emits JSON at info level for log shippers; everything else
// is treated as development and gets human-readable text at debug level
// so local sessions show every request and store call.
package logging

import (
	"log/slog"
	"os"
)

// NewLogger returns the logger for the given environment.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
