package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"thumbnail-engine/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// readyTimeout bounds the cache probe of the health endpoints.
const readyTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	CacheError string `json:"cacheError,omitempty"`

	// Engine state
	Enabled  bool `json:"enabled"`
	Pending  int  `json:"pending"`
	Running  int  `json:"running"`
	Cleaning bool `json:"cleaning"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Cache summary
	Backend      string `json:"backend,omitempty"`
	CacheEntries int64  `json:"cacheEntries"`
	CacheBytes   int64  `json:"cacheBytes"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := h.engine.Status()
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Enabled:      status.Enabled,
		Pending:      status.Pending,
		Running:      status.Running,
		Cleaning:     status.Cleaning,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	report, err := h.engine.Report(ctx)
	if err != nil {
		// Generation still works without a cache; deliveries are not persisted
		response.Status = statusDegraded
		response.CacheError = err.Error()
	} else {
		response.Backend = report.Backend
		response.CacheEntries = report.Entries
		response.CacheBytes = report.Bytes
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the cache backend answers
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if _, err := h.engine.Report(ctx); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
