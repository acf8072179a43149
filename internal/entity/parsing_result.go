package entity

// Field is one extracted name/value pair. Names need not be unique across
// repeated groups (line items); within one document the set of top-level names
// is treated as keys for structured export.
type Field struct {
	Name           string   `json:"name"`
	Value          any      `json:"value"`
	Confidence     *float64 `json:"confidence,omitempty"`
	SourceLocation *string  `json:"source_location,omitempty"`
}

// ParsingMetadata records where a result came from and what it cost.
type ParsingMetadata struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	PageCount        int    `json:"page_count"`
}

// ParsingResult is the canonical extraction record. Immutable once returned by
// the normalizer; re-derivation replaces, never mutates, a stored one.
type ParsingResult struct {
	DocumentType    string          `json:"document_type"`
	Confidence      float64         `json:"confidence"` // 0..100
	Summary         string          `json:"summary"`
	ExtractedFields []Field         `json:"extracted_fields"`
	StructuredData  map[string]any  `json:"structured_data"`
	Metadata        ParsingMetadata `json:"metadata"`
}

// HasFields reports whether the result carries at least one extracted field.
// Empty stored results do not count as a cache hit.
func (r *ParsingResult) HasFields() bool {
	return r != nil && len(r.ExtractedFields) > 0
}
