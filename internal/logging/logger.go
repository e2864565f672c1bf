package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithScope returns a logger with tenant and use case fields attached.
// Use this for all logging within a scoped operation.
func WithScope(tenantID, useCaseID string) *slog.Logger {
	return slog.With(
		"tenant_id", tenantID,
		"use_case_id", useCaseID,
	)
}

// WithVersion returns a logger scoped to a specific hierarchy version.
func WithVersion(logger *slog.Logger, versionID string, version int) *slog.Logger {
	return logger.With(
		"version_id", versionID,
		"version", version,
	)
}
