package entity

import "github.com/google/uuid"

// FieldSpec is one expected field in a template, in template order.
type FieldSpec struct {
	Name           string `json:"name"`
	Type           string `json:"type"` // string | number | date | boolean
	Required       bool   `json:"required"`
	ExtractionHint string `json:"extraction_hint,omitempty"`
}

// Template is a named, ordered specification of expected fields for a document
// type. Read-only to the pipeline: it guides extraction, it is never mutated.
type Template struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	DocumentType string         `json:"document_type"`
	Fields       []FieldSpec    `json:"fields"`
	Settings     map[string]any `json:"settings,omitempty"`
}
