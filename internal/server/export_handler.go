package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/entity"
	"github.com/docstreamhq/docstream/internal/export"
)

type exportHandler struct {
	svc    *export.Service
	logger *slog.Logger
}

func (h *exportHandler) create(w http.ResponseWriter, r *http.Request) {
	var req entity.CreateExportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, h.logger, common.ValidationError("undecodable request body"))
		return
	}

	job, fileURL, err := h.svc.Create(r.Context(), req)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newJobResponse(job, fileURL, time.Now()))
}

func (h *exportHandler) list(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.List(r.Context())
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	now := time.Now()
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, newJobResponse(&jobs[i], "", now))
	}
	render.JSON(w, r, out)
}

func (h *exportHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, newJobResponse(job, "", time.Now()))
}

// download serves a JSON preview by default; materialize=true streams the
// artifact itself as an attachment.
func (h *exportHandler) download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Download(r.Context(), id)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}

	if r.URL.Query().Get("materialize") == "true" {
		w.Header().Set("Content-Type", result.MIMEType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.Data); err != nil {
			h.logger.Warn("server.download_write_failed", "job_id", id, "error", err)
		}
		return
	}

	render.JSON(w, r, map[string]any{
		"format":   string(result.Format),
		"filename": result.Filename,
		"mimeType": result.MIMEType,
		"size":     len(result.Data),
		"preview":  preview(result.Data, h.svc.PreviewLimit()),
	})
}

func (h *exportHandler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	job, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, newJobResponse(job, "", time.Now()))
}

func (h *exportHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.NoContent(w, r)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.ValidationErrorf("id %q is not a UUID", raw)
	}
	return id, nil
}

// preview returns the leading chunk of a text artifact. Binary formats (xlsx)
// are summarized instead of dumped.
func preview(data []byte, limit int) string {
	if !utf8.Valid(data) {
		return fmt.Sprintf("<binary, %d bytes>", len(data))
	}
	if len(data) <= limit {
		return string(data)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}
