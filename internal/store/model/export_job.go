package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/docstreamhq/docstream/constants"
)

// ExportJob is one tracked unit of export work.
//
// Invariants: FilePath is set iff Status is completed; CompletedAt is set iff
// the job reached completed or failed; ErrorMessage only in failed.
type ExportJob struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"not null"`
	Description string
	Type        string `gorm:"not null;index"`
	Format      string `gorm:"not null"`
	Status      string `gorm:"not null;index"`

	Filters       json.RawMessage `gorm:"type:bytes"`
	IncludeFields json.RawMessage `gorm:"type:bytes"`
	Settings      json.RawMessage `gorm:"type:bytes"`

	FilePath      string
	FileSize      int64
	RecordsCount  int
	DownloadCount int
	RetryCount    int
	ErrorMessage  *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time
}

type ExportJobList []ExportJob

// Expired reports whether a completed job's artifact is past its horizon. The
// stored status stays "completed"; readers derive expiry from the clock.
func (j *ExportJob) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// EffectiveStatus is the status a reader should present, folding time-based
// expiry over the stored value.
func (j *ExportJob) EffectiveStatus(now time.Time) constants.JobStatus {
	s := constants.JobStatus(j.Status)
	if s == constants.JobStatusCompleted && j.Expired(now) {
		return constants.JobStatusExpired
	}
	return s
}
