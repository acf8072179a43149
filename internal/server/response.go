package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/store/model"
)

// jobResponse is the wire shape of an export job. Status is the effective
// status: stored completed folds to expired once the horizon passes.
type jobResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Type          string     `json:"type"`
	Format        string     `json:"format"`
	Status        string     `json:"status"`
	FilePath      string     `json:"filePath,omitempty"`
	FileURL       string     `json:"fileUrl,omitempty"`
	FileSize      int64      `json:"fileSize,omitempty"`
	RecordsCount  int        `json:"recordsCount"`
	DownloadCount int        `json:"downloadCount"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func newJobResponse(job *model.ExportJob, fileURL string, now time.Time) jobResponse {
	return jobResponse{
		ID:            job.ID.String(),
		Name:          job.Name,
		Description:   job.Description,
		Type:          job.Type,
		Format:        job.Format,
		Status:        string(job.EffectiveStatus(now)),
		FilePath:      job.FilePath,
		FileURL:       fileURL,
		FileSize:      job.FileSize,
		RecordsCount:  job.RecordsCount,
		DownloadCount: job.DownloadCount,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		ExpiresAt:     job.ExpiresAt,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// renderError maps the pipeline's error taxonomy onto HTTP. Unknown errors
// surface as 500 with a generic message; the detail goes to the log.
func renderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := common.HTTPStatus(err)
	resp := errorResponse{Code: common.CodeInternal, Message: "internal error"}
	var ae *common.AppError
	if errors.As(err, &ae) {
		resp.Code = ae.Code
		resp.Message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("server.request_failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
