package provider

import (
	"context"

	"github.com/docstreamhq/docstream/internal/entity"
)

// Modality is an input kind a backend can consume.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityVision Modality = "vision"
)

// ExtractRequest carries one document into a backend. Callers supply either
// DocumentText or DocumentImage; an adapter advertises which it supports.
type ExtractRequest struct {
	DocumentText  string
	DocumentImage []byte
	ImageMIME     string

	// Optional template constraining the expected fields.
	Template *entity.Template

	FilenameHint string
	PageCount    int
}

// HasImage reports whether image bytes were supplied.
func (r ExtractRequest) HasImage() bool { return len(r.DocumentImage) > 0 }

// RawModelOutput is the uninterpreted (but shape-validated) model response.
type RawModelOutput struct {
	Content   []byte // JSON object matching the extraction response schema
	Provider  string
	Model     string
	ElapsedMs int64
}

// Extractor is the interface the pipeline depends on. One configured
// provider/model is used per call; selection is static configuration.
type Extractor interface {
	Name() string
	Modalities() []Modality
	Extract(ctx context.Context, req ExtractRequest) (RawModelOutput, error)
}

// Supports reports whether m is among the advertised modalities.
func Supports(e Extractor, m Modality) bool {
	for _, got := range e.Modalities() {
		if got == m {
			return true
		}
	}
	return false
}
