package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a stored source document. Extraction holds the serialized
// ParsingResult from the last (re-)derivation; empty means never extracted.
type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"not null"`
	Type        string    `gorm:"index"`
	Status      string    `gorm:"index"`
	ContentType string
	StoragePath string `gorm:"not null"`
	PageCount   int
	TemplateID  *uuid.UUID      `gorm:"type:uuid;index"`
	Extraction  json.RawMessage `gorm:"type:bytes"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentList []Document

// HasStoredExtraction reports whether a non-empty extraction payload exists.
// Whether it counts as a cache hit additionally depends on it carrying fields.
func (d *Document) HasStoredExtraction() bool {
	return len(d.Extraction) > 0 && string(d.Extraction) != "null"
}
