package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/docstreamhq/docstream/internal/entity"
)

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured-output constraint and
// also use it locally to validate the response shape.
func BuildExtractionJSONSchema(tmpl *entity.Template) map[string]any {
	fieldProps := map[string]any{
		"name":            map[string]any{"type": "string", "minLength": 1},
		"value":           map[string]any{},
		"confidence":      map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0},
		"source_location": map[string]any{"type": "string"},
	}

	props := map[string]any{
		"document_type": map[string]any{"type": "string", "minLength": 1},
		"confidence":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0},
		"summary":       map[string]any{"type": "string"},
		"fields": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           fieldProps,
				"required":             []string{"name"},
			},
		},
	}
	required := []string{"document_type", "fields"}

	// Constrain document_type when a template pins it.
	if tmpl != nil && tmpl.DocumentType != "" {
		props["document_type"] = map[string]any{
			"type": "string",
			"enum": []string{tmpl.DocumentType},
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// ValidateAgainstSchema checks raw JSON against the schema map. A validation
// failure here means the backend returned content outside the expected
// response shape.
func ValidateAgainstSchema(schema map[string]any, raw []byte) error {
	sb, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.schema.json", bytes.NewReader(sb)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := compiler.Compile("extraction.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	return sch.Validate(doc)
}
