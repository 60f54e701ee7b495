package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/monitor"
	"eventhub/internal/storage"
	"eventhub/internal/version"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the eventhub API
type Handlers struct {
	storage       storage.Storage
	monitor       *monitor.Monitor
	publicBaseURL string
	started       time.Time
	now           func() time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithMonitor enables GET /api/v1/monitor/stats.
func WithMonitor(m *monitor.Monitor) HandlerOption {
	return func(h *Handlers) { h.monitor = m }
}

// WithPublicBaseURL sets the prefix of short URLs in API responses.
func WithPublicBaseURL(u string) HandlerOption {
	return func(h *Handlers) { h.publicBaseURL = u }
}

// NewHandlers creates a new handlers instance
func NewHandlers(store storage.Storage, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		storage: store,
		started: time.Now(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version
	response.Uptime = time.Since(h.started).Truncate(time.Second).String()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.storage.Ping(ctx); err != nil {
		slog.Warn("Health check storage ping failed", "error", err)
		response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// MonitorStats handles GET /api/v1/monitor/stats
// Requires 'admin' permission
func (h *Handlers) MonitorStats(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusNotFound, models.ErrorCodeNotFound, "Request monitoring is disabled")
		return
	}
	writeJSON(w, http.StatusOK, models.NewDataResponse("", h.monitor.Stats()))
}

// decodeJSON reads a bounded JSON body into dst. It reports false after
// writing a 400 response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written.
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}
