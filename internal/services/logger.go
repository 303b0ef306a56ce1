package services

import (
	"log/slog"

	"sehatmap/internal/infrastructure"
)

// serviceLogger returns logger, or the global one, tagged with the service component
func serviceLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return infrastructure.WithComponent(logger, component)
}
