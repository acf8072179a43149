package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docstreamhq/docstream/internal/store/model"
)

type Template interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Template, error)
}

type TemplateStore struct {
	db *gorm.DB
}

var _ Template = (*TemplateStore)(nil)

func NewTemplateStore(db *gorm.DB) Template {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Get(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	var tmpl model.Template
	result := getDB(ctx, s.db).First(&tmpl, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &tmpl, nil
}
