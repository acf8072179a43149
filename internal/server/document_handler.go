package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/docstreamhq/docstream/internal/export"
)

type documentHandler struct {
	svc    *export.Service
	logger *slog.Logger
}

// extract re-runs the extraction pipeline for one document and returns the
// stored result.
func (h *documentHandler) extract(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.ExtractDocument(r.Context(), id)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, result)
}
