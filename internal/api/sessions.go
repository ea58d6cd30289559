package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fauxto/internal/activity"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.Create)
}

// Create mints a new delivery session. Sessions carry no input and are never
// deleted, so creation cannot conflict with existing state.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.CreateSession(r.Context())
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.metrics.IncSessionsCreated()
	h.recorder.Publish(activity.Event{
		Kind:      activity.KindSessionCreated,
		SessionID: session.ID,
	})

	slog.Info("Session created", "session_id", session.ID)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": session.ID,
		"createdAt": session.CreatedAt.UnixMilli(),
	})
}
