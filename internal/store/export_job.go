package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docstreamhq/docstream/constants"
	"github.com/docstreamhq/docstream/internal/store/model"
)

type ExportJob interface {
	Create(ctx context.Context, job model.ExportJob) (*model.ExportJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ExportJob, error)
	List(ctx context.Context) (model.ExportJobList, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, recordsCount int, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, completedAt time.Time) error
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
	IncrementRetryCount(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExportJobStore struct {
	db *gorm.DB
}

// Make sure we conform to the ExportJob interface
var _ ExportJob = (*ExportJobStore)(nil)

func NewExportJobStore(db *gorm.DB) ExportJob {
	return &ExportJobStore{db: db}
}

func (s *ExportJobStore) Create(ctx context.Context, job model.ExportJob) (*model.ExportJob, error) {
	result := getDB(ctx, s.db).Clauses(clause.Returning{}).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *ExportJobStore) Get(ctx context.Context, id uuid.UUID) (*model.ExportJob, error) {
	var job model.ExportJob
	result := getDB(ctx, s.db).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *ExportJobStore) List(ctx context.Context) (model.ExportJobList, error) {
	var jobs model.ExportJobList
	result := getDB(ctx, s.db).Order("created_at DESC").Find(&jobs)
	if result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

// MarkProcessing re-arms a job for another run, clearing the previous
// terminal outcome.
func (s *ExportJobStore) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":        string(constants.JobStatusProcessing),
		"started_at":    startedAt,
		"expires_at":    expiresAt,
		"completed_at":  nil,
		"error_message": nil,
	})
}

// MarkCompleted moves the job to its completed terminal state in one row
// update, keeping the filePath-iff-completed invariant.
func (s *ExportJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, recordsCount int, completedAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":        string(constants.JobStatusCompleted),
		"file_path":     filePath,
		"file_size":     fileSize,
		"records_count": recordsCount,
		"completed_at":  completedAt,
		"error_message": nil,
	})
}

func (s *ExportJobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, completedAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":        string(constants.JobStatusFailed),
		"completed_at":  completedAt,
		"error_message": message,
	})
}

func (s *ExportJobStore) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	return s.increment(ctx, id, "download_count")
}

func (s *ExportJobStore) IncrementRetryCount(ctx context.Context, id uuid.UUID) error {
	return s.increment(ctx, id, "retry_count")
}

func (s *ExportJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := getDB(ctx, s.db).Delete(&model.ExportJob{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ExportJobStore) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	result := getDB(ctx, s.db).Model(&model.ExportJob{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ExportJobStore) increment(ctx context.Context, id uuid.UUID, column string) error {
	result := getDB(ctx, s.db).Model(&model.ExportJob{}).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
