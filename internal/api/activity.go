package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fauxto/internal/activity"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 256
)

// ActivityHandler exposes the recent delivery events buffered in the ring.
type ActivityHandler struct {
	recorder *activity.Recorder
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(recorder *activity.Recorder) *ActivityHandler {
	return &ActivityHandler{recorder: recorder}
}

// RegisterRoutes registers activity routes.
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/activity/recent", h.Recent)
}

// Recent returns up to limit buffered events, oldest first.
func (h *ActivityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, fmt.Sprintf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	events := h.recorder.Recent(limit)
	if events == nil {
		events = []activity.Event{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
