package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docstreamhq/docstream/internal/entity"
)

// Template is the stored field specification for a document type. The pipeline
// reads templates, it never creates or mutates them.
type Template struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name         string          `gorm:"not null"`
	DocumentType string          `gorm:"index"`
	Fields       json.RawMessage `gorm:"type:bytes"`
	Settings     json.RawMessage `gorm:"type:bytes"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToEntity decodes the stored field specs into the pipeline's template shape.
func (t *Template) ToEntity() (*entity.Template, error) {
	out := &entity.Template{
		ID:           t.ID,
		Name:         t.Name,
		DocumentType: t.DocumentType,
	}
	if len(t.Fields) > 0 {
		if err := json.Unmarshal(t.Fields, &out.Fields); err != nil {
			return nil, fmt.Errorf("decode template fields: %w", err)
		}
	}
	if len(t.Settings) > 0 {
		if err := json.Unmarshal(t.Settings, &out.Settings); err != nil {
			return nil, fmt.Errorf("decode template settings: %w", err)
		}
	}
	return out, nil
}
