package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstreamhq/docstream/constants"
	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/entity"
	"github.com/docstreamhq/docstream/internal/export"
	"github.com/docstreamhq/docstream/internal/exportfmt"
	"github.com/docstreamhq/docstream/internal/normalize"
	"github.com/docstreamhq/docstream/internal/provider"
	"github.com/docstreamhq/docstream/internal/store"
	"github.com/docstreamhq/docstream/internal/store/model"
	"github.com/docstreamhq/docstream/internal/textextract"
)

// In-memory store and pipeline doubles, just enough to run the handlers.

type memJobs struct{ jobs map[uuid.UUID]*model.ExportJob }

func (s *memJobs) Create(_ context.Context, job model.ExportJob) (*model.ExportJob, error) {
	job.CreatedAt = time.Now()
	c := job
	s.jobs[job.ID] = &c
	out := c
	return &out, nil
}

func (s *memJobs) Get(_ context.Context, id uuid.UUID) (*model.ExportJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	out := *j
	return &out, nil
}

func (s *memJobs) List(_ context.Context) (model.ExportJobList, error) {
	out := make(model.ExportJobList, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (s *memJobs) MarkProcessing(_ context.Context, id uuid.UUID, startedAt, expiresAt time.Time) error {
	j := s.jobs[id]
	j.Status = string(constants.JobStatusProcessing)
	j.StartedAt = &startedAt
	j.ExpiresAt = &expiresAt
	j.CompletedAt = nil
	j.ErrorMessage = nil
	return nil
}

func (s *memJobs) MarkCompleted(_ context.Context, id uuid.UUID, filePath string, fileSize int64, recordsCount int, completedAt time.Time) error {
	j := s.jobs[id]
	j.Status = string(constants.JobStatusCompleted)
	j.FilePath = filePath
	j.FileSize = fileSize
	j.RecordsCount = recordsCount
	j.CompletedAt = &completedAt
	return nil
}

func (s *memJobs) MarkFailed(_ context.Context, id uuid.UUID, message string, completedAt time.Time) error {
	j := s.jobs[id]
	j.Status = string(constants.JobStatusFailed)
	j.ErrorMessage = &message
	j.CompletedAt = &completedAt
	return nil
}

func (s *memJobs) IncrementDownloadCount(_ context.Context, id uuid.UUID) error {
	s.jobs[id].DownloadCount++
	return nil
}

func (s *memJobs) IncrementRetryCount(_ context.Context, id uuid.UUID) error {
	s.jobs[id].RetryCount++
	return nil
}

func (s *memJobs) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.jobs[id]; !ok {
		return store.ErrRecordNotFound
	}
	delete(s.jobs, id)
	return nil
}

type memDocs struct{ docs map[uuid.UUID]*model.Document }

func (s *memDocs) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	out := *d
	return &out, nil
}

func (s *memDocs) ListByIDs(_ context.Context, ids []uuid.UUID) (model.DocumentList, error) {
	var out model.DocumentList
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memDocs) ListByTemplate(_ context.Context, _ uuid.UUID) (model.DocumentList, error) {
	return nil, nil
}

func (s *memDocs) ListByFilter(_ context.Context, _, _ string) (model.DocumentList, error) {
	return nil, nil
}

func (s *memDocs) UpdateExtraction(_ context.Context, id uuid.UUID, extraction json.RawMessage, pageCount int) error {
	d, ok := s.docs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	d.Extraction = extraction
	d.PageCount = pageCount
	return nil
}

type memTemplates struct{}

func (memTemplates) Get(_ context.Context, _ uuid.UUID) (*model.Template, error) {
	return nil, store.ErrRecordNotFound
}

type memStore struct {
	jobs *memJobs
	docs *memDocs
}

func (s *memStore) ExportJob() store.ExportJob { return s.jobs }
func (s *memStore) Document() store.Document   { return s.docs }
func (s *memStore) Template() store.Template   { return memTemplates{} }
func (s *memStore) Close() error               { return nil }

type memArtifacts struct{ objects map[string][]byte }

func (a *memArtifacts) Put(_ context.Context, key string, data []byte, _ string) error {
	a.objects[key] = data
	return nil
}

func (a *memArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, common.NotFoundError(fmt.Sprintf("object %s not found", key))
	}
	return data, nil
}

func (a *memArtifacts) Delete(_ context.Context, key string) error {
	delete(a.objects, key)
	return nil
}

func (a *memArtifacts) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://storage.test/" + key, nil
}

type passthroughTexts struct{}

func (passthroughTexts) Extract(_ context.Context, _ string, data []byte) (textextract.Result, error) {
	return textextract.Result{Text: string(data), Pages: 1}, nil
}

type cannedBackend struct{}

func (cannedBackend) Name() string                    { return "canned" }
func (cannedBackend) Modalities() []provider.Modality { return []provider.Modality{provider.ModalityText} }

func (cannedBackend) Extract(_ context.Context, _ provider.ExtractRequest) (provider.RawModelOutput, error) {
	content := `{"document_type":"invoice","confidence":90,"fields":[{"name":"total","value":10}]}`
	return provider.RawModelOutput{Content: []byte(content), Provider: "canned", Model: "canned-1"}, nil
}

type testEnv struct {
	handler   http.Handler
	docID     uuid.UUID
	artifacts *memArtifacts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docID := uuid.New()
	docs := &memDocs{docs: map[uuid.UUID]*model.Document{
		docID: {ID: docID, Name: "invoice.txt", StoragePath: "docs/invoice.txt", ContentType: "text/plain"},
	}}
	artifacts := &memArtifacts{objects: map[string][]byte{"docs/invoice.txt": []byte("Invoice, total 10")}}

	svc := export.NewService(
		&memStore{jobs: &memJobs{jobs: map[uuid.UUID]*model.ExportJob{}}, docs: docs},
		artifacts,
		passthroughTexts{},
		cannedBackend{},
		normalize.NewNormalizer(nil),
		exportfmt.NewFormatter(),
		export.Config{},
		nil,
	)
	srv := New(common.ServerConfig{Addr: ":0", ShutdownTimeout: time.Second}, svc, nil)
	return &testEnv{handler: srv.Routes(), docID: docID, artifacts: artifacts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createExport(t *testing.T) jobResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/exports", entity.CreateExportRequest{
		Name:        "March close",
		Type:        string(constants.ExportTypeDocument),
		Format:      string(constants.FormatCSV),
		DocumentIDs: []string{e.docID.String()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := env.createExport(t)

	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, 1, job.RecordsCount)
	assert.NotEmpty(t, job.FileURL)
}

func TestCreateExportRejectsBadPayloads(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/exports", entity.CreateExportRequest{
		Name: "x", Type: "everything", Format: "csv",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, common.CodeValidation, body.Code)
}

func TestGetExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := env.createExport(t)

	rec := env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/exports/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/exports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := env.createExport(t)

	rec := env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Format   string `json:"format"`
		Filename string `json:"filename"`
		MIMEType string `json:"mimeType"`
		Size     int    `json:"size"`
		Preview  string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, string(constants.FormatCSV), preview.Format)
	assert.Equal(t, exportfmt.MIMECSV, preview.MIMEType)
	assert.NotZero(t, preview.Size)
	assert.Contains(t, preview.Preview, "Document,Field,Value,Confidence")

	rec = env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID+"/download?materialize=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exportfmt.MIMECSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "total")
}

func TestDeleteExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := env.createExport(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/exports/"+job.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractDocumentEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/documents/"+env.docID.String()+"/extract", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res entity.ParsingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "invoice", res.DocumentType)
	require.Len(t, res.ExtractedFields, 1)
	assert.Equal(t, "total", res.ExtractedFields[0].Name)
}
