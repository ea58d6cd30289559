package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fauxto/internal/activity"
	"github.com/ashureev/fauxto/internal/domain"
	"github.com/ashureev/fauxto/internal/shared"
	"github.com/ashureev/fauxto/internal/store"
)

const (
	minBatchCount = 1
	maxBatchCount = 100

	reserveMaxRetries = 3
	reserveBaseDelay  = 50 * time.Millisecond
)

// ContentHandler handles content reservation endpoints.
type ContentHandler struct {
	*Handler
}

// NewContentHandler creates a new content handler.
func NewContentHandler(base *Handler) *ContentHandler {
	return &ContentHandler{Handler: base}
}

// RegisterRoutes registers content routes.
func (h *ContentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/content", func(r chi.Router) {
		r.Get("/batch", h.Batch)
		r.Get("/next", h.Next)
	})
}

// itemPayload is the wire form of one reserved item.
type itemPayload struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	IsAI bool   `json:"isAI"`
}

// Batch reserves up to count unseen items of one category for a session.
// Exhaustion is a normal response: the items array comes back short or empty.
func (h *ContentHandler) Batch(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseSessionID(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	category, err := domain.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := parseCount(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	items, err := h.reserveBatchWithRetry(r.Context(), sessionID, category, count)
	if err != nil {
		h.metrics.ObserveReserveDuration(string(category), "error", time.Since(start))
		h.writeReserveError(w, err, sessionID)
		return
	}
	h.metrics.ObserveReserveDuration(string(category), "ok", time.Since(start))
	h.metrics.AddItemsReserved(string(category), len(items))
	if len(items) < count {
		h.metrics.IncExhaustion(string(category))
	}

	if len(items) > 0 {
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		h.recorder.Publish(activity.Event{
			Kind:      activity.KindItemsReserved,
			SessionID: sessionID,
			Category:  string(category),
			ItemIDs:   ids,
			Count:     len(items),
		})
	}

	slog.Debug("Content batch served",
		"session_id", sessionID,
		"category", category,
		"requested", count,
		"served", len(items))

	payload := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload{ID: item.ID, URL: item.URL, IsAI: item.IsAI()})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"items": payload})
}

// Next reserves a single unseen item of any category for a session. A null
// item means the session has seen the whole active catalog.
func (h *ContentHandler) Next(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseSessionID(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	item, err := h.reserveOneWithRetry(r.Context(), sessionID)
	if err != nil {
		h.metrics.ObserveReserveDuration("any", "error", time.Since(start))
		h.writeReserveError(w, err, sessionID)
		return
	}
	h.metrics.ObserveReserveDuration("any", "ok", time.Since(start))

	if item == nil {
		h.metrics.IncExhaustion("any")
		JSON(w, http.StatusOK, map[string]interface{}{"item": nil})
		return
	}

	h.metrics.AddItemsReserved(string(item.Category), 1)
	h.recorder.Publish(activity.Event{
		Kind:      activity.KindItemsReserved,
		SessionID: sessionID,
		Category:  string(item.Category),
		ItemIDs:   []int64{item.ID},
		Count:     1,
	})

	JSON(w, http.StatusOK, map[string]interface{}{
		"item": itemPayload{ID: item.ID, URL: item.URL, IsAI: item.IsAI()},
	})
}

// writeReserveError maps reservation failures onto the wire contract: an
// unknown session is a client error, persistent store contention asks the
// client to retry, anything else stays opaque.
func (h *ContentHandler) writeReserveError(w http.ResponseWriter, err error, sessionID int64) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		Error(w, http.StatusBadRequest, "unknown session")
	case shared.IsSQLiteConflictError(err) || shared.IsSQLiteConstraintError(err):
		slog.Warn("Reservation still contended after retries", "error", err, "session_id", sessionID)
		Error(w, http.StatusServiceUnavailable, "content store busy")
	default:
		slog.Error("Failed to reserve content", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to reserve content")
	}
}

// reserveBatchWithRetry attempts the batch reservation with exponential backoff
// to handle SQLITE_BUSY errors during concurrent reservations.
func (h *ContentHandler) reserveBatchWithRetry(ctx context.Context, sessionID int64, category domain.Category, count int) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	err := retryReservation(ctx, sessionID, func() error {
		var err error
		items, err = h.repo.ReserveBatch(ctx, sessionID, category, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// reserveOneWithRetry attempts the single reservation under the same backoff
// policy as reserveBatchWithRetry.
func (h *ContentHandler) reserveOneWithRetry(ctx context.Context, sessionID int64) (*domain.ContentItem, error) {
	var item *domain.ContentItem
	err := retryReservation(ctx, sessionID, func() error {
		var err error
		item, err = h.repo.ReserveOne(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// retryReservation runs op with exponential backoff on SQLite contention.
// When two reservations for one session race, the loser's seen-ledger insert
// fails on the primary key and rolls the whole transaction back; the retried
// transaction re-selects without the contested items, so constraint errors
// are as safe to retry as busy/locked ones.
func retryReservation(ctx context.Context, sessionID int64, op func() error) error {
	for i := 0; i < reserveMaxRetries; i++ {
		err := op()
		if err == nil {
			return nil
		}

		retryable := shared.IsSQLiteConflictError(err) || shared.IsSQLiteConstraintError(err)
		if retryable && ctx.Err() == nil && i < reserveMaxRetries-1 {
			delay := reserveBaseDelay * time.Duration(1<<i) // exponential backoff
			slog.Debug("Content store contended, retrying reservation",
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return err
	}
	return nil
}

// parseSessionID reads the required session query parameter.
func parseSessionID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("session")
	if raw == "" {
		return 0, fmt.Errorf("missing session parameter")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("session must be a positive integer, got %q", raw)
	}
	return id, nil
}

// parseCount reads the required count query parameter and enforces the batch
// size bounds.
func parseCount(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return 0, fmt.Errorf("missing count parameter")
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("count must be an integer, got %q", raw)
	}
	if count < minBatchCount || count > maxBatchCount {
		return 0, fmt.Errorf("count must be between %d and %d", minBatchCount, maxBatchCount)
	}
	return count, nil
}
