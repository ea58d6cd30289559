package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fauxto/internal/dataset"
)

// DatasetHandler handles dataset browsing endpoints.
type DatasetHandler struct {
	*Handler
	resolver      *dataset.Resolver
	publicBaseURL string
}

// NewDatasetHandler creates a new dataset handler. publicBaseURL is where the
// listed files are served from.
func NewDatasetHandler(base *Handler, resolver *dataset.Resolver, publicBaseURL string) *DatasetHandler {
	return &DatasetHandler{
		Handler:       base,
		resolver:      resolver,
		publicBaseURL: publicBaseURL,
	}
}

// RegisterRoutes registers dataset routes.
func (h *DatasetHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dataset", h.Resolve)
}

// Resolve lists one dataset directory: its child folders and, per category,
// the files it holds. An empty path addresses the content root.
func (h *DatasetHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	leaf := r.URL.Query().Get("path")

	manifest, err := h.resolver.ListLeaf(r.Context(), leaf)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrNotFound):
			h.metrics.IncDatasetRequest("not_found")
			Error(w, http.StatusNotFound, "dataset path not found")
		case errors.Is(err, dataset.ErrInvalidPath):
			h.metrics.IncDatasetRequest("invalid")
			Error(w, http.StatusBadRequest, "invalid dataset path")
		default:
			h.metrics.IncDatasetRequest("error")
			slog.Error("Failed to resolve dataset path", "error", err, "path", leaf)
			Error(w, http.StatusInternalServerError, "failed to resolve dataset path")
		}
		return
	}

	h.metrics.IncDatasetRequest("ok")
	JSON(w, http.StatusOK, map[string]interface{}{
		"path":    manifest.Path,
		"folders": emptyIfNil(manifest.Folders),
		"files": map[string][]string{
			dataset.AIFolder:    emptyIfNil(manifest.AIFiles),
			dataset.HumanFolder: emptyIfNil(manifest.HumanFiles),
		},
		"publicBaseUrl": h.publicBaseURL,
	})
}

// emptyIfNil keeps absent lists encoding as [] instead of null.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
