package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/config"
)

// healthCheckTimeout bounds each dependency ping.
const healthCheckTimeout = 2 * time.Second

// Dependency states reported by /health.
const (
	DependencyOK          = "ok"
	DependencyUnavailable = "unavailable"
	DependencyDisabled    = "disabled"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports dependency state. Status is "ok" only when both
// provider keys are configured.
type HealthResponse struct {
	Status               string `json:"status"`
	Version              string `json:"version"`
	Database             string `json:"database"`
	Redis                string `json:"redis"`
	CompletionConfigured bool   `json:"completion_configured"`
	DuneConfigured       bool   `json:"dune_configured"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	redis  Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and redis may be nil when
// the dependency is not in use.
func NewHealthHandler(cfg *config.Config, db, redis Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, redis: redis, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Answers 503 when the completion or Dune key is missing.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := h.Check(r.Context())

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Check gathers the health report.
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:               "ok",
		Version:              h.cfg.Version,
		Database:             h.ping(ctx, "database", h.db),
		Redis:                h.ping(ctx, "redis", h.redis),
		CompletionConfigured: h.cfg.Completion.IsConfigured(),
		DuneConfigured:       h.cfg.Dune.IsConfigured(),
	}
	if !response.CompletionConfigured || !response.DuneConfigured {
		response.Status = "misconfigured"
	}
	return response
}

func (h *HealthHandler) ping(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return DependencyDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
		return DependencyUnavailable
	}
	return DependencyOK
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "dunelens",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
