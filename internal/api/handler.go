// Package api provides HTTP handlers for the content delivery API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fauxto/internal/activity"
	"github.com/ashureev/fauxto/internal/metrics"
	"github.com/ashureev/fauxto/internal/store"
)

// healthCheckTimeout bounds the store ping on the health endpoint.
const healthCheckTimeout = 5 * time.Second

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	metrics  *metrics.Metrics
	recorder *activity.Recorder
}

// NewHandler creates a new Handler with common dependencies. The metrics and
// recorder may be nil.
func NewHandler(repo store.Repository, m *metrics.Metrics, recorder *activity.Recorder) *Handler {
	return &Handler{
		repo:     repo,
		metrics:  m,
		recorder: recorder,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := map[string]string{
		"status":   "healthy",
		"database": "connected",
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
