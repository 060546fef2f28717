// Package telemetry wires up process-wide structured logging and a
// small pub/sub hub used to fan loop and connection lifecycle events
// out to observers.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger builds the single JSON slog.Logger every loop, WebSocket
// client/server, and worker in the process is handed explicitly. No
// package keeps a package-level default logger.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
