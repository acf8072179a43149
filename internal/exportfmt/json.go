package exportfmt

import (
	"encoding/json"
	"fmt"

	"github.com/docstreamhq/docstream/constants"
)

// toJSON serializes the canonical result(s) verbatim. A single document export
// is the bare ParsingResult object; a batch is an array tagging each result
// with its document name.
func (f *Formatter) toJSON(name string, results []DocumentResult) (FormattedExport, error) {
	var payload any
	if len(results) == 1 {
		payload = results[0].Result
	} else {
		type entry struct {
			Document string `json:"document"`
			Result   any    `json:"result"`
		}
		entries := make([]entry, 0, len(results))
		for _, r := range results {
			entries = append(entries, entry{Document: r.Document, Result: r.Result})
		}
		payload = entries
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return FormattedExport{}, fmt.Errorf("marshal export: %w", err)
	}
	return FormattedExport{
		Format:   constants.FormatJSON,
		Filename: f.filename(name, "json"),
		MIMEType: MIMEJSON,
		Data:     data,
	}, nil
}

// toStructured emits the hierarchical structured_data view as pretty-printed
// JSON, for downstream consumption rather than spreadsheet import.
func (f *Formatter) toStructured(name string, results []DocumentResult) (FormattedExport, error) {
	var payload any
	if len(results) == 1 {
		payload = results[0].Result.StructuredData
	} else {
		type entry struct {
			Document string `json:"document"`
			Data     any    `json:"data"`
		}
		entries := make([]entry, 0, len(results))
		for _, r := range results {
			entries = append(entries, entry{Document: r.Document, Data: r.Result.StructuredData})
		}
		payload = entries
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return FormattedExport{}, fmt.Errorf("marshal structured export: %w", err)
	}
	return FormattedExport{
		Format:   constants.FormatStructured,
		Filename: f.filename(name, "json"),
		MIMEType: MIMEJSON,
		Data:     data,
	}, nil
}
