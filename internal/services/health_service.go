package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/edges-ai/vquant/internal/operations"
)

// ClientCounter reports the number of connected WebSocket clients.
// *websocket.Hub satisfies it.
type ClientCounter interface {
	ClientCount() int
}

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth is one dependency's health.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats summarizes runtime state for the stats endpoint.
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Market           string  `json:"market"`
	Timeframe        string  `json:"timeframe"`
	ActiveStudies    int     `json:"active_studies"`
	TrackedStudies   int     `json:"tracked_studies"`
	WebSocketClients int     `json:"websocket_clients"`
	Goroutines       int     `json:"goroutines"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// readinessTimeout bounds the store probe so a hung backend cannot stall
// the health endpoint.
const readinessTimeout = 5 * time.Second

// HealthService reports liveness, readiness and runtime statistics.
type HealthService struct {
	version   string
	buildTime string
	client    ResearchData
	manager   *operations.Manager
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service.
func NewHealthService(version, buildTime string, client ResearchData, manager *operations.Manager, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		client:    client,
		manager:   manager,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Liveness reports whether the process itself is up. It never probes
// dependencies.
func (s *HealthService) Liveness(ctx context.Context) *HealthStatus {
	return &HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Runtime: map[string]interface{}{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
		},
	}
}

// Readiness probes the factor store and reports degraded when it cannot be
// reached. The overall status is "ok" only when every dependency is.
func (s *HealthService) Readiness(ctx context.Context) *HealthStatus {
	status := s.Liveness(ctx)
	status.Services = map[string]ServiceHealth{
		"store": s.checkStore(ctx),
	}

	for _, svc := range status.Services {
		if svc.Status != "ok" {
			status.Status = "degraded"
			break
		}
	}
	return status
}

func (s *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if s.client == nil {
		return ServiceHealth{Status: "unavailable", Message: "no store configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	start := time.Now()
	if _, err := s.client.ListFactors(probeCtx, ""); err != nil {
		s.logger.WarnContext(ctx, "store probe failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return ServiceHealth{Status: "unreachable", Message: err.Error()}
	}
	return ServiceHealth{Status: "ok"}
}

// Stats reports runtime statistics.
func (s *HealthService) Stats(ctx context.Context) *SystemStats {
	stats := &SystemStats{
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
		Goroutines:       runtime.NumGoroutine(),
		GoVersion:        runtime.Version(),
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
	}
	if s.client != nil {
		stats.Market = s.client.Market()
		stats.Timeframe = s.client.Timeframe()
	}
	if s.hub != nil {
		stats.WebSocketClients = s.hub.ClientCount()
	}
	if s.manager != nil {
		states := s.manager.ListOperations()
		stats.TrackedStudies = len(states)
		for _, state := range states {
			if !state.IsComplete() {
				stats.ActiveStudies++
			}
		}
	}
	return stats
}
