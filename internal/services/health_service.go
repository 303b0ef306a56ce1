package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"sehatmap/pkg/contracts"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	store     Pinger
	dataset   func() string
	reference string
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. store may be nil when persistence is
// disabled; dataset returns the current input table path.
func NewHealthService(store Pinger, dataset func() string, reference string, logger *slog.Logger) *HealthService {
	logger = serviceLogger(logger, "health_service")
	logger.Info("HealthService initialized",
		slog.String("version", contracts.Version),
		slog.Bool("store", store != nil))

	return &HealthService{
		version:   contracts.Version,
		store:     store,
		dataset:   dataset,
		reference: reference,
		startTime: time.Now(),
		logger:    logger,
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck returns readiness status. The service is ready when the store answers and
// the input dataset exists; a missing geographic reference only degrades runs.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"store":     hs.checkStore(ctx),
			"dataset":   hs.checkDataset(),
			"reference": hs.checkReference(),
		},
	}

	for name, service := range status.Services {
		if name == "reference" {
			continue
		}
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}

	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "Readiness check failed", slog.Any("services", status.Services))
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "ready", Message: "Prediction store disabled"}
	}
	if err := hs.store.Ping(ctx); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Store unreachable: %v", err),
		}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkDataset() ServiceHealth {
	path := ""
	if hs.dataset != nil {
		path = hs.dataset()
	}
	if _, err := os.Stat(path); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Dataset not found: %s", path),
		}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkReference() ServiceHealth {
	if hs.reference == "" {
		return ServiceHealth{Status: "degraded", Message: "No geographic reference configured"}
	}
	if _, err := os.Stat(hs.reference); err != nil {
		return ServiceHealth{
			Status:  "degraded",
			Message: fmt.Sprintf("Geographic reference not found: %s", hs.reference),
		}
	}
	return ServiceHealth{Status: "ready"}
}
