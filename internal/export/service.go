// Package export owns the export-job state machine: resolve source documents,
// assemble per-document extraction results (stored ones first, re-deriving the
// rest), format once, persist the artifact, and land the job in a terminal
// state. A run never leaves a job stuck in processing.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

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

// ArtifactStore is the key→bytes store the orchestrator persists artifacts to.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// JobRunner decides where Run executes. The default runs inline within the
// create call; a queue consumer can take over without touching the state
// machine.
type JobRunner interface {
	Submit(ctx context.Context, job *model.ExportJob)
}

type syncRunner struct {
	svc *Service
}

func (r syncRunner) Submit(ctx context.Context, job *model.ExportJob) {
	r.svc.Run(ctx, job)
}

type Config struct {
	ExpiryHorizon time.Duration // artifact availability window from job start
	PreviewLimit  int           // max preview characters on the download surface
}

type Service struct {
	store     store.Store
	artifacts ArtifactStore
	texts     textextract.TextExtractor
	backend   provider.Extractor
	norm      *normalize.Normalizer
	formatter *exportfmt.Formatter
	runner    JobRunner
	validate  *validator.Validate
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(st store.Store, artifacts ArtifactStore, texts textextract.TextExtractor, backend provider.Extractor, norm *normalize.Normalizer, formatter *exportfmt.Formatter, cfg Config, logger *slog.Logger) *Service {
	if cfg.ExpiryHorizon <= 0 {
		cfg.ExpiryHorizon = 7 * 24 * time.Hour
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     st,
		artifacts: artifacts,
		texts:     texts,
		backend:   backend,
		norm:      norm,
		formatter: formatter,
		validate:  validator.New(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	s.runner = syncRunner{svc: s}
	return s
}

// WithClock pins the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRunner replaces the inline runner (e.g. with a queue producer).
func (s *Service) WithRunner(r JobRunner) *Service {
	s.runner = r
	return s
}

// Create validates the request, persists the job in processing and submits the
// run. The caller gets the job back immediately; with the default runner the
// run has already finished by then, but the contract does not promise that.
func (s *Service) Create(ctx context.Context, req entity.CreateExportRequest) (*model.ExportJob, string, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, "", common.ValidationError(err.Error())
	}
	if !constants.ValidExportType(req.Type) {
		return nil, "", common.ValidationErrorf("invalid export type %q", req.Type)
	}
	if !constants.ValidGenerationFormat(req.Format) {
		return nil, "", common.ValidationErrorf("invalid export format %q", req.Format)
	}

	filters := make(map[string]any, len(req.Filters)+1)
	for k, v := range req.Filters {
		filters[k] = v
	}
	if len(req.DocumentIDs) > 0 {
		for _, id := range req.DocumentIDs {
			if _, err := uuid.Parse(id); err != nil {
				return nil, "", common.ValidationErrorf("document id %q is not a UUID", id)
			}
		}
		filters["document_ids"] = req.DocumentIDs
	}

	now := s.now().UTC()
	expires := now.Add(s.cfg.ExpiryHorizon)
	job := model.ExportJob{
		ID:            uuid.New(),
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Format:        req.Format,
		Status:        string(constants.JobStatusProcessing),
		Filters:       mustMarshal(filters),
		IncludeFields: mustMarshal(req.IncludeFields),
		Settings:      mustMarshal(req.Settings),
		StartedAt:     &now,
		ExpiresAt:     &expires,
	}

	created, err := s.store.ExportJob().Create(ctx, job)
	if err != nil {
		return nil, "", common.StorageError("create export job", err)
	}
	s.logger.Info("export.create.ok",
		"job_id", created.ID,
		"type", created.Type,
		"format", created.Format,
	)

	s.runner.Submit(ctx, created)

	final, err := s.store.ExportJob().Get(ctx, created.ID)
	if err != nil {
		return nil, "", common.StorageError("reload export job", err)
	}
	var fileURL string
	if final.Status == string(constants.JobStatusCompleted) && final.FilePath != "" {
		if u, err := s.artifacts.PresignedURL(ctx, final.FilePath); err == nil {
			fileURL = u
		} else {
			s.logger.Warn("export.presign_failed", "job_id", final.ID, "error", err)
		}
	}
	return final, fileURL, nil
}

// Run drives one job to a terminal state. Every downstream error is caught and
// persisted; the only way out of processing is completed or failed.
func (s *Service) Run(ctx context.Context, job *model.ExportJob) {
	start := s.now()

	docs, err := s.resolveSources(ctx, job)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return
	}
	if len(docs) == 0 {
		s.fail(ctx, job.ID, common.NoDataError("export matched no documents"))
		return
	}

	include := decodeIncludeFields(job.IncludeFields)
	results := make([]exportfmt.DocumentResult, 0, len(docs))
	for _, doc := range docs {
		res, err := s.resultFor(ctx, &doc)
		if err != nil {
			// partial-failure policy: skip this document, keep the batch alive
			s.logger.Warn("export.document_skipped",
				"job_id", job.ID,
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		results = append(results, exportfmt.DocumentResult{
			Document: doc.Name,
			Result:   applyIncludeFields(res, include),
		})
	}
	if len(results) == 0 {
		s.fail(ctx, job.ID, common.NoDataError(fmt.Sprintf("all %d documents failed extraction", len(docs))))
		return
	}

	formatted, err := s.formatter.Format(job.Name, results, constants.ExportFormat(job.Format))
	if err != nil {
		s.fail(ctx, job.ID, err)
		return
	}

	// Retries regenerate the artifact under a fresh key; a file path is
	// assigned exactly once per completion and never reused.
	key := fmt.Sprintf("exports/%s/%s", job.ID, formatted.Filename)
	if err := s.artifacts.Put(ctx, key, formatted.Data, formatted.MIMEType); err != nil {
		s.fail(ctx, job.ID, err)
		return
	}

	completedAt := s.now().UTC()
	if err := s.store.ExportJob().MarkCompleted(ctx, job.ID, key, int64(len(formatted.Data)), len(results), completedAt); err != nil {
		s.logger.Error("export.complete_update_failed", "job_id", job.ID, "error", err)
		s.fail(ctx, job.ID, common.StorageError("persist completion", err))
		return
	}

	s.logger.Info("export.run.ok",
		"job_id", job.ID,
		"records", len(results),
		"skipped", len(docs)-len(results),
		"bytes", len(formatted.Data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Get returns the job record; status plus error message is the single source
// of truth for terminal states.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.ExportJob, error) {
	job, err := s.store.ExportJob().Get(ctx, id)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil, common.NotFoundError("export job not found")
		}
		return nil, common.StorageError("load export job", err)
	}
	return job, nil
}

// Retry re-runs a failed job. The previous outcome is cleared, the retry is
// counted, and any new artifact lands under a fresh key; completed jobs are
// not retryable because their file path is assigned exactly once.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*model.ExportJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != string(constants.JobStatusFailed) {
		return nil, common.ValidationErrorf("only failed exports can be retried, this one is %s", job.Status)
	}

	now := s.now().UTC()
	if err := s.store.ExportJob().MarkProcessing(ctx, id, now, now.Add(s.cfg.ExpiryHorizon)); err != nil {
		return nil, common.StorageError("re-arm export job", err)
	}
	if err := s.store.ExportJob().IncrementRetryCount(ctx, id); err != nil {
		s.logger.Warn("export.retry_count_failed", "job_id", id, "error", err)
	}
	s.logger.Info("export.retry", "job_id", id, "attempt", job.RetryCount+1)

	s.runner.Submit(ctx, job)
	return s.Get(ctx, id)
}

// List returns all jobs, newest first.
func (s *Service) List(ctx context.Context) (model.ExportJobList, error) {
	jobs, err := s.store.ExportJob().List(ctx)
	if err != nil {
		return nil, common.StorageError("list export jobs", err)
	}
	return jobs, nil
}

// DownloadResult is one materialized artifact handed to the download surface.
type DownloadResult struct {
	Format   constants.ExportFormat
	Filename string
	MIMEType string
	Data     []byte
}

// Download gates on the job's effective state, then fetches the artifact and
// counts the download.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (*DownloadResult, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != string(constants.JobStatusCompleted) {
		return nil, common.NotReadyError(fmt.Sprintf("export is %s, not completed", job.Status))
	}
	if job.Expired(s.now()) {
		return nil, common.ExpiredError("export artifact has expired")
	}

	data, err := s.artifacts.Get(ctx, job.FilePath)
	if err != nil {
		return nil, err
	}
	if err := s.store.ExportJob().IncrementDownloadCount(ctx, id); err != nil {
		s.logger.Warn("export.download_count_failed", "job_id", id, "error", err)
	}

	// the artifact key is internal; downloads carry the job's own name
	format := constants.ExportFormat(job.Format)
	return &DownloadResult{
		Format:   format,
		Filename: fmt.Sprintf("%s.%s", exportfmt.Slugify(job.Name), exportfmt.ExtFor(format)),
		MIMEType: exportfmt.MIMEFor(format),
		Data:     data,
	}, nil
}

// PreviewLimit exposes the configured preview cap to the HTTP surface.
func (s *Service) PreviewLimit() int { return s.cfg.PreviewLimit }

// Delete removes the job record. The artifact delete is best-effort: blob and
// row are allowed to diverge, and we only log when they do.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.FilePath != "" {
		if err := s.artifacts.Delete(ctx, job.FilePath); err != nil {
			s.logger.Warn("export.artifact_delete_failed", "job_id", id, "path", job.FilePath, "error", err)
		}
	}
	if err := s.store.ExportJob().Delete(ctx, id); err != nil {
		if err == store.ErrRecordNotFound {
			return common.NotFoundError("export job not found")
		}
		return common.StorageError("delete export job", err)
	}
	s.logger.Info("export.delete.ok", "job_id", id)
	return nil
}

// ExtractDocument re-derives and stores a single document's extraction.
// Unlike the batch path, provider and normalization failures are fatal here.
func (s *Service) ExtractDocument(ctx context.Context, docID uuid.UUID) (*entity.ParsingResult, error) {
	doc, err := s.store.Document().Get(ctx, docID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil, common.NotFoundError("document not found")
		}
		return nil, common.StorageError("load document", err)
	}
	return s.derive(ctx, doc)
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) {
	s.logger.Warn("export.run.failed", "job_id", id, "error", cause)
	if err := s.store.ExportJob().MarkFailed(ctx, id, cause.Error(), s.now().UTC()); err != nil {
		// Nothing left to do but shout: the job row could not be updated.
		s.logger.Error("export.fail_update_failed", "job_id", id, "error", err)
	}
}

// resolveSources maps the job type to its source-record query.
func (s *Service) resolveSources(ctx context.Context, job *model.ExportJob) (model.DocumentList, error) {
	var filters map[string]any
	if len(job.Filters) > 0 {
		if err := json.Unmarshal(job.Filters, &filters); err != nil {
			return nil, common.ValidationError("undecodable job filters")
		}
	}

	switch constants.ExportType(job.Type) {
	case constants.ExportTypeDocument:
		ids := stringSlice(filters["document_ids"])
		if len(ids) == 0 {
			return nil, common.NoDataError("document_export requires document ids")
		}
		parsed := make([]uuid.UUID, 0, len(ids))
		for _, raw := range ids {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, common.ValidationErrorf("document id %q is not a UUID", raw)
			}
			parsed = append(parsed, id)
		}
		docs, err := s.store.Document().ListByIDs(ctx, parsed)
		if err != nil {
			return nil, common.StorageError("list documents", err)
		}
		return docs, nil

	case constants.ExportTypeTemplate:
		raw, _ := filters["template_id"].(string)
		tid, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.ValidationError("template_export requires a template_id filter")
		}
		docs, err := s.store.Document().ListByTemplate(ctx, tid)
		if err != nil {
			return nil, common.StorageError("list documents by template", err)
		}
		return docs, nil

	case constants.ExportTypeBulk:
		docType, _ := filters["type"].(string)
		status, _ := filters["status"].(string)
		docs, err := s.store.Document().ListByFilter(ctx, docType, status)
		if err != nil {
			return nil, common.StorageError("list documents", err)
		}
		return docs, nil

	default:
		return nil, common.ValidationErrorf("invalid export type %q", job.Type)
	}
}

// resultFor returns the stored extraction when it is usable (cache hit: no AI
// call), otherwise re-derives through the full pipeline.
func (s *Service) resultFor(ctx context.Context, doc *model.Document) (*entity.ParsingResult, error) {
	if doc.HasStoredExtraction() {
		var cached entity.ParsingResult
		if err := json.Unmarshal(doc.Extraction, &cached); err == nil && cached.HasFields() {
			return &cached, nil
		}
	}
	return s.derive(ctx, doc)
}

// derive runs text extraction → provider → normalizer for one document and
// replaces the stored result. Concurrent derivations of the same document race
// benignly: last writer wins, extraction is idempotent for identical input.
func (s *Service) derive(ctx context.Context, doc *model.Document) (*entity.ParsingResult, error) {
	var tmpl *entity.Template
	if doc.TemplateID != nil {
		row, err := s.store.Template().Get(ctx, *doc.TemplateID)
		if err != nil {
			return nil, common.StorageError("load template", err)
		}
		tmpl, err = row.ToEntity()
		if err != nil {
			return nil, common.StorageError("decode template", err)
		}
	}

	data, err := s.artifacts.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, err
	}

	extracted, err := s.texts.Extract(ctx, doc.Name, data)
	if err != nil {
		return nil, common.ProviderError("text extraction failed", err)
	}

	req := provider.ExtractRequest{
		Template:     tmpl,
		FilenameHint: doc.Name,
		PageCount:    extracted.Pages,
	}
	if constants.MapExtToFormat(filepath.Ext(doc.Name)) == constants.IMAGE {
		if !provider.Supports(s.backend, provider.ModalityVision) {
			return nil, common.ProviderError(fmt.Sprintf("backend %s cannot read image documents", s.backend.Name()), nil)
		}
		req.DocumentImage = data
		req.ImageMIME = doc.ContentType
	} else {
		req.DocumentText = extracted.Text
	}

	raw, err := s.backend.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.norm.Normalize(raw, tmpl, extracted.Pages)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode parsing result: %w", err)
	}
	if err := s.store.Document().UpdateExtraction(ctx, doc.ID, payload, extracted.Pages); err != nil {
		// the result is still good for this run; only the cache write failed
		s.logger.Warn("export.extraction_store_failed", "document_id", doc.ID, "error", err)
	}
	return result, nil
}

// applyIncludeFields narrows a result to the requested top-level field names
// (group prefixes match their dotted members). Empty include list means all.
func applyIncludeFields(res *entity.ParsingResult, include []string) *entity.ParsingResult {
	if len(include) == 0 {
		return res
	}
	allowed := make(map[string]struct{}, len(include))
	for _, name := range include {
		allowed[name] = struct{}{}
	}
	fields := make([]entity.Field, 0, len(res.ExtractedFields))
	for _, f := range res.ExtractedFields {
		top := f.Name
		if prefix, _, ok := strings.Cut(f.Name, "."); ok {
			top = prefix
		}
		if _, ok := allowed[top]; ok {
			fields = append(fields, f)
		}
	}
	narrowed := *res
	narrowed.ExtractedFields = fields
	narrowed.StructuredData = normalize.BuildStructuredData(fields)
	return &narrowed
}

func decodeIncludeFields(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func mustMarshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
