package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstreamhq/docstream/constants"
	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/entity"
	"github.com/docstreamhq/docstream/internal/exportfmt"
	"github.com/docstreamhq/docstream/internal/normalize"
	"github.com/docstreamhq/docstream/internal/provider"
	"github.com/docstreamhq/docstream/internal/store"
	"github.com/docstreamhq/docstream/internal/store/model"
	"github.com/docstreamhq/docstream/internal/textextract"
)

// --- fakes -----------------------------------------------------------------

type fakeJobStore struct {
	jobs map[uuid.UUID]*model.ExportJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*model.ExportJob)}
}

func (s *fakeJobStore) Create(_ context.Context, job model.ExportJob) (*model.ExportJob, error) {
	job.CreatedAt = time.Now()
	copied := job
	s.jobs[job.ID] = &copied
	out := copied
	return &out, nil
}

func (s *fakeJobStore) Get(_ context.Context, id uuid.UUID) (*model.ExportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	out := *job
	return &out, nil
}

func (s *fakeJobStore) List(_ context.Context) (model.ExportJobList, error) {
	out := make(model.ExportJobList, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (s *fakeJobStore) MarkProcessing(_ context.Context, id uuid.UUID, startedAt, expiresAt time.Time) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	job.Status = string(constants.JobStatusProcessing)
	job.StartedAt = &startedAt
	job.ExpiresAt = &expiresAt
	job.CompletedAt = nil
	job.ErrorMessage = nil
	return nil
}

func (s *fakeJobStore) MarkCompleted(_ context.Context, id uuid.UUID, filePath string, fileSize int64, recordsCount int, completedAt time.Time) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	job.Status = string(constants.JobStatusCompleted)
	job.FilePath = filePath
	job.FileSize = fileSize
	job.RecordsCount = recordsCount
	job.CompletedAt = &completedAt
	job.ErrorMessage = nil
	return nil
}

func (s *fakeJobStore) MarkFailed(_ context.Context, id uuid.UUID, message string, completedAt time.Time) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	job.Status = string(constants.JobStatusFailed)
	job.CompletedAt = &completedAt
	job.ErrorMessage = &message
	return nil
}

func (s *fakeJobStore) IncrementDownloadCount(_ context.Context, id uuid.UUID) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	job.DownloadCount++
	return nil
}

func (s *fakeJobStore) IncrementRetryCount(_ context.Context, id uuid.UUID) error {
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	job.RetryCount++
	return nil
}

func (s *fakeJobStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.jobs[id]; !ok {
		return store.ErrRecordNotFound
	}
	delete(s.jobs, id)
	return nil
}

type fakeDocStore struct {
	docs map[uuid.UUID]*model.Document
}

func newFakeDocStore(docs ...*model.Document) *fakeDocStore {
	s := &fakeDocStore{docs: make(map[uuid.UUID]*model.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocStore) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	out := *doc
	return &out, nil
}

func (s *fakeDocStore) ListByIDs(_ context.Context, ids []uuid.UUID) (model.DocumentList, error) {
	out := make(model.DocumentList, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeDocStore) ListByTemplate(_ context.Context, templateID uuid.UUID) (model.DocumentList, error) {
	var out model.DocumentList
	for _, doc := range s.docs {
		if doc.TemplateID != nil && *doc.TemplateID == templateID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeDocStore) ListByFilter(_ context.Context, docType, status string) (model.DocumentList, error) {
	var out model.DocumentList
	for _, doc := range s.docs {
		if docType != "" && doc.Type != docType {
			continue
		}
		if status != "" && doc.Status != status {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (s *fakeDocStore) UpdateExtraction(_ context.Context, id uuid.UUID, extraction json.RawMessage, pageCount int) error {
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	doc.Extraction = extraction
	doc.PageCount = pageCount
	return nil
}

type fakeTemplateStore struct {
	templates map[uuid.UUID]*model.Template
}

func (s *fakeTemplateStore) Get(_ context.Context, id uuid.UUID) (*model.Template, error) {
	if s == nil || s.templates == nil {
		return nil, store.ErrRecordNotFound
	}
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	return tmpl, nil
}

type fakeStore struct {
	jobs      *fakeJobStore
	docs      *fakeDocStore
	templates *fakeTemplateStore
}

func (s *fakeStore) ExportJob() store.ExportJob { return s.jobs }
func (s *fakeStore) Document() store.Document   { return s.docs }
func (s *fakeStore) Template() store.Template   { return s.templates }
func (s *fakeStore) Close() error               { return nil }

type fakeArtifacts struct {
	objects map[string][]byte
	puts    []string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{objects: make(map[string][]byte)}
}

func (a *fakeArtifacts) Put(_ context.Context, key string, data []byte, _ string) error {
	a.objects[key] = data
	a.puts = append(a.puts, key)
	return nil
}

func (a *fakeArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, common.NotFoundError(fmt.Sprintf("object %s not found", key))
	}
	return data, nil
}

func (a *fakeArtifacts) Delete(_ context.Context, key string) error {
	delete(a.objects, key)
	return nil
}

func (a *fakeArtifacts) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://storage.test/" + key, nil
}

type fakeTexts struct{}

func (fakeTexts) Extract(_ context.Context, _ string, data []byte) (textextract.Result, error) {
	return textextract.Result{Text: string(data), Pages: 1}, nil
}

// fakeBackend answers by document name; failFor entries error instead.
type fakeBackend struct {
	answers map[string]string
	failFor map[string]bool
	calls   int
}

func (b *fakeBackend) Name() string                    { return "fake" }
func (b *fakeBackend) Modalities() []provider.Modality { return []provider.Modality{provider.ModalityText} }

func (b *fakeBackend) Extract(_ context.Context, req provider.ExtractRequest) (provider.RawModelOutput, error) {
	b.calls++
	if b.failFor[req.FilenameHint] {
		return provider.RawModelOutput{}, common.ProviderError("upstream rejected the request", nil)
	}
	answer, ok := b.answers[req.FilenameHint]
	if !ok {
		answer = `{"document_type":"invoice","confidence":90,"fields":[{"name":"total","value":10}]}`
	}
	return provider.RawModelOutput{Content: []byte(answer), Provider: "fake", Model: "fake-1"}, nil
}

// --- fixtures --------------------------------------------------------------

type fixture struct {
	svc       *Service
	jobs      *fakeJobStore
	docs      *fakeDocStore
	artifacts *fakeArtifacts
	backend   *fakeBackend
	now       time.Time
}

func newFixture(t *testing.T, docs ...*model.Document) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      newFakeJobStore(),
		docs:      newFakeDocStore(docs...),
		artifacts: newFakeArtifacts(),
		backend:   &fakeBackend{answers: map[string]string{}, failFor: map[string]bool{}},
		now:       time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}
	st := &fakeStore{jobs: f.jobs, docs: f.docs, templates: &fakeTemplateStore{}}
	f.svc = NewService(
		st,
		f.artifacts,
		fakeTexts{},
		f.backend,
		normalize.NewNormalizer(nil),
		exportfmt.NewFormatterWithClock(func() time.Time { return f.now }),
		Config{ExpiryHorizon: 7 * 24 * time.Hour},
		nil,
	).WithClock(func() time.Time { return f.now })
	return f
}

func sourceDoc(name string) *model.Document {
	return &model.Document{
		ID:          uuid.New(),
		Name:        name,
		Type:        "invoice",
		Status:      "ready",
		ContentType: "text/plain",
		StoragePath: "docs/" + name,
	}
}

func cachedDoc(t *testing.T, name string, fieldNames ...string) *model.Document {
	t.Helper()
	doc := sourceDoc(name)
	fields := make([]entity.Field, 0, len(fieldNames))
	for _, n := range fieldNames {
		fields = append(fields, entity.Field{Name: n, Value: "v-" + n})
	}
	res := entity.ParsingResult{
		DocumentType:    "invoice",
		Confidence:      90,
		Summary:         "Cached extraction.",
		ExtractedFields: fields,
		StructuredData:  normalize.BuildStructuredData(fields),
	}
	payload, err := json.Marshal(res)
	require.NoError(t, err)
	doc.Extraction = payload
	return doc
}

func exportRequest(ids ...uuid.UUID) entity.CreateExportRequest {
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}
	return entity.CreateExportRequest{
		Name:        "March close",
		Type:        string(constants.ExportTypeDocument),
		Format:      string(constants.FormatCSV),
		DocumentIDs: raw,
	}
}

// --- tests -----------------------------------------------------------------

func TestCreateRunsToCompletion(t *testing.T) {
	doc := sourceDoc("invoice.txt")
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("Invoice from Acme, total 10")

	job, fileURL, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), job.Status)
	assert.Equal(t, 1, job.RecordsCount)
	assert.NotEmpty(t, job.FilePath)
	assert.True(t, strings.HasPrefix(fileURL, "https://storage.test/"))
	require.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.ErrorMessage)

	_, ok := f.artifacts.objects[job.FilePath]
	assert.True(t, ok)

	// re-derivation was persisted back onto the document
	stored, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasStoredExtraction())
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Create(context.Background(), entity.CreateExportRequest{Type: "document_export", Format: "csv"})
	assert.True(t, common.IsCode(err, common.CodeValidation), "missing name")

	_, _, err = f.svc.Create(context.Background(), entity.CreateExportRequest{Name: "x", Type: "everything", Format: "csv"})
	assert.True(t, common.IsCode(err, common.CodeValidation), "bad type")

	_, _, err = f.svc.Create(context.Background(), entity.CreateExportRequest{Name: "x", Type: "document_export", Format: "pdf"})
	assert.True(t, common.IsCode(err, common.CodeValidation), "bad format")

	req := exportRequest()
	req.DocumentIDs = []string{"not-a-uuid"}
	_, _, err = f.svc.Create(context.Background(), req)
	assert.True(t, common.IsCode(err, common.CodeValidation), "bad document id")
}

func TestRunAlwaysTerminates(t *testing.T) {
	// no matching documents: the job still leaves processing
	f := newFixture(t)
	job, _, err := f.svc.Create(context.Background(), exportRequest(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusFailed), job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "NO_DATA")
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.FilePath)
}

func TestRunSkipsFailingDocuments(t *testing.T) {
	d1, d2, d3 := sourceDoc("a.txt"), sourceDoc("b.txt"), sourceDoc("c.txt")
	f := newFixture(t, d1, d2, d3)
	for _, d := range []*model.Document{d1, d2, d3} {
		f.artifacts.objects[d.StoragePath] = []byte("text")
	}
	f.backend.failFor["b.txt"] = true

	job, _, err := f.svc.Create(context.Background(), exportRequest(d1.ID, d2.ID, d3.ID))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), job.Status)
	assert.Equal(t, 2, job.RecordsCount)
}

func TestRunFailsWhenEveryDocumentFails(t *testing.T) {
	doc := sourceDoc("a.txt")
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("text")
	f.backend.failFor["a.txt"] = true

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)
	assert.Equal(t, string(constants.JobStatusFailed), job.Status)
}

func TestStoredExtractionSkipsProvider(t *testing.T) {
	doc := cachedDoc(t, "cached.txt", "vendor", "total", "date")
	f := newFixture(t, doc)

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), job.Status)
	assert.Equal(t, 1, job.RecordsCount)
	assert.Zero(t, f.backend.calls)
}

func TestEmptyStoredExtractionIsNotACacheHit(t *testing.T) {
	doc := cachedDoc(t, "empty.txt") // stored result with zero fields
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("text")

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), job.Status)
	assert.Equal(t, 1, f.backend.calls)
}

func TestCachedAndFailingDocumentsTogether(t *testing.T) {
	d1 := cachedDoc(t, "cached.txt", "vendor", "total", "date")
	d2 := sourceDoc("broken.txt")
	f := newFixture(t, d1, d2)
	f.artifacts.objects[d2.StoragePath] = []byte("text")
	f.backend.failFor["broken.txt"] = true

	job, _, err := f.svc.Create(context.Background(), exportRequest(d1.ID, d2.ID))
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), job.Status)
	assert.Equal(t, 1, job.RecordsCount)

	data, err := f.artifacts.Get(context.Background(), job.FilePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 4) // header + the three cached fields
}

func TestDownloadGates(t *testing.T) {
	doc := cachedDoc(t, "cached.txt", "vendor")
	f := newFixture(t, doc)

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)

	_, err = f.svc.Download(context.Background(), uuid.New())
	assert.True(t, common.IsCode(err, common.CodeNotFound))

	got, err := f.svc.Download(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FormatCSV, got.Format)
	assert.Equal(t, exportfmt.MIMECSV, got.MIMEType)
	assert.Equal(t, "march-close.csv", got.Filename)
	assert.NotEmpty(t, got.Data)

	reloaded, err := f.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.DownloadCount)

	// past the horizon the artifact is gone for good
	f.now = f.now.Add(8 * 24 * time.Hour)
	_, err = f.svc.Download(context.Background(), job.ID)
	assert.True(t, common.IsCode(err, common.CodeExpired))
}

func TestDownloadRejectsFailedJob(t *testing.T) {
	f := newFixture(t)
	job, _, err := f.svc.Create(context.Background(), exportRequest(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, string(constants.JobStatusFailed), job.Status)

	_, err = f.svc.Download(context.Background(), job.ID)
	assert.True(t, common.IsCode(err, common.CodeNotReady))
}

func TestDeleteRemovesJobAndArtifact(t *testing.T) {
	doc := cachedDoc(t, "cached.txt", "vendor")
	f := newFixture(t, doc)

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)
	require.Contains(t, f.artifacts.objects, job.FilePath)

	require.NoError(t, f.svc.Delete(context.Background(), job.ID))
	assert.NotContains(t, f.artifacts.objects, job.FilePath)

	_, err = f.svc.Get(context.Background(), job.ID)
	assert.True(t, common.IsCode(err, common.CodeNotFound))
}

func TestArtifactKeysAreNeverReused(t *testing.T) {
	d1 := cachedDoc(t, "one.txt", "vendor")
	d2 := cachedDoc(t, "two.txt", "vendor")
	f := newFixture(t, d1, d2)

	j1, _, err := f.svc.Create(context.Background(), exportRequest(d1.ID))
	require.NoError(t, err)
	j2, _, err := f.svc.Create(context.Background(), exportRequest(d2.ID))
	require.NoError(t, err)

	assert.NotEqual(t, j1.FilePath, j2.FilePath)
	assert.Len(t, f.artifacts.puts, 2)
}

func TestRetryRecoversFailedJob(t *testing.T) {
	doc := sourceDoc("flaky.txt")
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("text")
	f.backend.failFor["flaky.txt"] = true

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)
	require.Equal(t, string(constants.JobStatusFailed), job.Status)

	f.backend.failFor["flaky.txt"] = false
	retried, err := f.svc.Retry(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, string(constants.JobStatusCompleted), retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.NotEmpty(t, retried.FilePath)
	assert.Nil(t, retried.ErrorMessage)
}

func TestRetryRejectsCompletedJob(t *testing.T) {
	doc := cachedDoc(t, "cached.txt", "vendor")
	f := newFixture(t, doc)

	job, _, err := f.svc.Create(context.Background(), exportRequest(doc.ID))
	require.NoError(t, err)
	require.Equal(t, string(constants.JobStatusCompleted), job.Status)

	_, err = f.svc.Retry(context.Background(), job.ID)
	assert.True(t, common.IsCode(err, common.CodeValidation))
}

func TestIncludeFieldsNarrowsOutput(t *testing.T) {
	doc := cachedDoc(t, "cached.txt", "vendor", "total", "date")
	f := newFixture(t, doc)

	req := exportRequest(doc.ID)
	req.IncludeFields = []string{"vendor", "total"}
	job, _, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	data, err := f.artifacts.Get(context.Background(), job.FilePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.NotContains(t, string(data), "date")
}

func TestExtractDocumentStoresResult(t *testing.T) {
	doc := sourceDoc("invoice.txt")
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("Invoice from Acme")

	res, err := f.svc.ExtractDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoice", res.DocumentType)
	assert.True(t, res.HasFields())

	stored, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasStoredExtraction())
}

func TestExtractDocumentPropagatesProviderFailure(t *testing.T) {
	doc := sourceDoc("broken.txt")
	f := newFixture(t, doc)
	f.artifacts.objects[doc.StoragePath] = []byte("text")
	f.backend.failFor["broken.txt"] = true

	_, err := f.svc.ExtractDocument(context.Background(), doc.ID)
	assert.True(t, common.IsCode(err, common.CodeProvider))
}
