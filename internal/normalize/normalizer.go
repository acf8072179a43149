// Package normalize turns raw provider output into the canonical ParsingResult.
// Normalize is pure: identical raw output and template produce an identical
// result, byte for byte once serialized.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/entity"
	"github.com/docstreamhq/docstream/internal/provider"
)

type modelField struct {
	Name           string   `json:"name"`
	Value          any      `json:"value"`
	Confidence     *float64 `json:"confidence,omitempty"`
	SourceLocation *string  `json:"source_location,omitempty"`
}

type modelPayload struct {
	DocumentType string       `json:"document_type"`
	Confidence   *float64     `json:"confidence,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Fields       []modelField `json:"fields"`
}

type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts raw model output (+ optional template) into a
// ParsingResult. Missing required template fields never fail the call; they
// surface as nil values and a lower aggregate confidence. It fails only when
// the output cannot be read as structured data at all.
func (n *Normalizer) Normalize(raw provider.RawModelOutput, tmpl *entity.Template, pageCount int) (*entity.ParsingResult, error) {
	content := bytes.TrimSpace(raw.Content)
	if len(content) == 0 {
		return nil, common.NormalizationError("empty model output", nil)
	}

	var payload modelPayload
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, common.NormalizationError("model output is not a JSON object", err)
	}

	var fields []entity.Field
	var docType string
	if tmpl != nil {
		docType = tmpl.DocumentType
		fields = reconcileWithTemplate(payload.Fields, tmpl)
	} else {
		docType = strings.TrimSpace(payload.DocumentType)
		if docType == "" {
			docType = "unknown"
		}
		fields = make([]entity.Field, 0, len(payload.Fields))
		for _, f := range payload.Fields {
			fields = append(fields, entity.Field(f))
		}
	}

	confidence := aggregateConfidence(payload.Confidence, fields, tmpl)

	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		summary = fmt.Sprintf("Processed %s document", docType)
	}

	return &entity.ParsingResult{
		DocumentType:    docType,
		Confidence:      confidence,
		Summary:         summary,
		ExtractedFields: fields,
		StructuredData:  BuildStructuredData(fields),
		Metadata: entity.ParsingMetadata{
			Provider:         raw.Provider,
			Model:            raw.Model,
			ProcessingTimeMs: raw.ElapsedMs,
			PageCount:        pageCount,
		},
	}, nil
}

// reconcileWithTemplate fills one Field per FieldSpec, in template order.
// Model fields not named by the template are dropped, except dotted group
// fields (line items), which pass through after the template's own fields.
func reconcileWithTemplate(got []modelField, tmpl *entity.Template) []entity.Field {
	out := make([]entity.Field, 0, len(tmpl.Fields))
	for _, spec := range tmpl.Fields {
		var match *modelField
		for i := range got {
			if nameEq(got[i].Name, spec.Name) {
				match = &got[i]
				break
			}
		}
		f := entity.Field{Name: spec.Name}
		if match != nil {
			f.Value = match.Value
			f.Confidence = match.Confidence
			f.SourceLocation = match.SourceLocation
		}
		out = append(out, f)
	}
	for _, g := range got {
		if strings.Contains(g.Name, ".") && !templateNames(tmpl, g.Name) {
			out = append(out, entity.Field(g))
		}
	}
	return out
}

func templateNames(tmpl *entity.Template, name string) bool {
	for _, spec := range tmpl.Fields {
		if nameEq(spec.Name, name) {
			return true
		}
	}
	return false
}

// nameEq compares field names ignoring case and space/underscore differences.
func nameEq(a, b string) bool {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	}
	return norm(a) == norm(b)
}

// aggregateConfidence prefers the provider's own scalar. The response schema
// already pins it to the 0..100 scale, so the value is taken as-is, clamped but
// never rescaled: a reported 1 means 1%, not 100%. Without a scalar it is
// synthesized from how much of the template was actually populated.
func aggregateConfidence(scalar *float64, fields []entity.Field, tmpl *entity.Template) float64 {
	requiredFrac := 1.0
	if tmpl != nil {
		var required, populated int
		for i, spec := range tmpl.Fields {
			if !spec.Required {
				continue
			}
			required++
			if i < len(fields) && fields[i].Value != nil {
				populated++
			}
		}
		if required > 0 {
			requiredFrac = float64(populated) / float64(required)
		}
	}

	if scalar != nil {
		v := *scalar
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		// missing required fields drag the provider's own estimate down
		return v * requiredFrac
	}

	if tmpl != nil {
		return 100 * requiredFrac
	}
	if len(fields) > 0 {
		return 100
	}
	return 0
}

// BuildStructuredData groups dotted field names ("line_items.amount") into
// ordered sequences of objects; everything else becomes a scalar key. A group
// starts a new object whenever a sub-key repeats.
func BuildStructuredData(fields []entity.Field) map[string]any {
	out := make(map[string]any, len(fields))
	groups := make(map[string][]map[string]any)
	var groupOrder []string

	for _, f := range fields {
		prefix, key, ok := strings.Cut(f.Name, ".")
		if !ok || prefix == "" || key == "" {
			out[f.Name] = f.Value
			continue
		}
		rows := groups[prefix]
		if rows == nil {
			groupOrder = append(groupOrder, prefix)
		}
		if len(rows) == 0 {
			rows = append(rows, map[string]any{})
		}
		current := rows[len(rows)-1]
		if _, seen := current[key]; seen {
			current = map[string]any{}
			rows = append(rows, current)
		}
		current[key] = f.Value
		groups[prefix] = rows
	}

	for _, prefix := range groupOrder {
		rows := groups[prefix]
		seq := make([]any, 0, len(rows))
		for _, r := range rows {
			seq = append(seq, r)
		}
		out[prefix] = seq
	}
	return out
}
