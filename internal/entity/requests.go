package entity

// CreateExportRequest is the create-surface payload for a new export job.
type CreateExportRequest struct {
	Name          string         `json:"name" validate:"required,min=1,max=200"`
	Description   string         `json:"description,omitempty" validate:"max=2000"`
	Type          string         `json:"type" validate:"required"`
	Format        string         `json:"format" validate:"required"`
	Filters       map[string]any `json:"filters,omitempty"`
	IncludeFields []string       `json:"include_fields,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
	DocumentIDs   []string       `json:"document_ids,omitempty"`
}
