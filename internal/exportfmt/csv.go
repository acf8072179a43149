package exportfmt

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/docstreamhq/docstream/constants"
)

// csvHeader is the canonical tabular schema; the Excel layout mirrors it.
var csvHeader = []string{"Document", "Field", "Value", "Confidence"}

// toCSV writes one row per document-field pair. Quoting and escaping follow
// encoding/csv (RFC 4180): delimiters and quotes force quoting, inner quotes
// are doubled.
func (f *Formatter) toCSV(name string, results []DocumentResult) (FormattedExport, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return FormattedExport{}, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		for _, field := range r.Result.ExtractedFields {
			row := []string{
				r.Document,
				field.Name,
				CellValue(field.Value),
				confidenceCell(field.Confidence),
			}
			if err := w.Write(row); err != nil {
				return FormattedExport{}, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return FormattedExport{}, fmt.Errorf("flush csv: %w", err)
	}

	return FormattedExport{
		Format:   constants.FormatCSV,
		Filename: f.filename(name, "csv"),
		MIMEType: MIMECSV,
		Data:     buf.Bytes(),
	}, nil
}

// CellValue renders an extracted value for a tabular cell. Composite values
// (nested objects, arrays) are compact JSON.
func CellValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func confidenceCell(c *float64) string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(*c, 'f', -1, 64)
}

// FieldRows counts the tabular rows (excluding header) a batch produces.
func FieldRows(results []DocumentResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Result.ExtractedFields)
	}
	return n
}
