package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docstreamhq/docstream/internal/store/model"
)

type Document interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) (model.DocumentList, error)
	ListByTemplate(ctx context.Context, templateID uuid.UUID) (model.DocumentList, error)
	ListByFilter(ctx context.Context, docType, status string) (model.DocumentList, error)
	UpdateExtraction(ctx context.Context, id uuid.UUID, extraction json.RawMessage, pageCount int) error
}

type DocumentStore struct {
	db *gorm.DB
}

var _ Document = (*DocumentStore)(nil)

func NewDocumentStore(db *gorm.DB) Document {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	result := getDB(ctx, s.db).First(&doc, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &doc, nil
}

// ListByIDs returns the documents in the order the ids were requested.
// Unknown ids are silently absent; callers decide whether that matters.
func (s *DocumentStore) ListByIDs(ctx context.Context, ids []uuid.UUID) (model.DocumentList, error) {
	var docs model.DocumentList
	result := getDB(ctx, s.db).Where("id IN ?", ids).Find(&docs)
	if result.Error != nil {
		return nil, result.Error
	}

	byID := make(map[uuid.UUID]model.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	ordered := make(model.DocumentList, 0, len(docs))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

func (s *DocumentStore) ListByTemplate(ctx context.Context, templateID uuid.UUID) (model.DocumentList, error) {
	var docs model.DocumentList
	result := getDB(ctx, s.db).Where("template_id = ?", templateID).Order("created_at ASC").Find(&docs)
	if result.Error != nil {
		return nil, result.Error
	}
	return docs, nil
}

func (s *DocumentStore) ListByFilter(ctx context.Context, docType, status string) (model.DocumentList, error) {
	tx := getDB(ctx, s.db).Order("created_at ASC")
	if docType != "" {
		tx = tx.Where("type = ?", docType)
	}
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var docs model.DocumentList
	if result := tx.Find(&docs); result.Error != nil {
		return nil, result.Error
	}
	return docs, nil
}

// UpdateExtraction replaces the stored extraction wholesale. Concurrent
// re-derivations race here; last writer wins, which is fine because extraction
// is idempotent for identical input.
func (s *DocumentStore) UpdateExtraction(ctx context.Context, id uuid.UUID, extraction json.RawMessage, pageCount int) error {
	result := getDB(ctx, s.db).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]any{
		"extraction": extraction,
		"page_count": pageCount,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
