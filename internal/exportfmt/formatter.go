// Package exportfmt renders canonical extraction results into downloadable
// artifacts. Formatting is pure: identical inputs produce identical bytes, and
// only the filename depends on the clock.
package exportfmt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/docstreamhq/docstream/constants"
	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/entity"
)

// MIME types per export format.
const (
	MIMEJSON  = "application/json"
	MIMECSV   = "text/csv"
	MIMEExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// DocumentResult pairs one source document's display name with its extraction.
type DocumentResult struct {
	Document string
	Result   *entity.ParsingResult
}

// FormattedExport is the formatter's output. Ephemeral: only its bytes are
// persisted, keyed by the job's file path.
type FormattedExport struct {
	Format   constants.ExportFormat
	Filename string
	MIMEType string
	Data     []byte
}

type Formatter struct {
	now func() time.Time
}

func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// NewFormatterWithClock pins the filename timestamp, for tests.
func NewFormatterWithClock(now func() time.Time) *Formatter {
	return &Formatter{now: now}
}

// Format renders results into the target format.
func (f *Formatter) Format(name string, results []DocumentResult, format constants.ExportFormat) (FormattedExport, error) {
	switch format {
	case constants.FormatJSON:
		return f.toJSON(name, results)
	case constants.FormatCSV:
		return f.toCSV(name, results)
	case constants.FormatExcel:
		return f.toExcel(name, results)
	case constants.FormatStructured:
		return f.toStructured(name, results)
	default:
		return FormattedExport{}, common.ValidationErrorf("unsupported export format %q", format)
	}
}

// MIMEFor returns the content type served for a format.
func MIMEFor(format constants.ExportFormat) string {
	switch format {
	case constants.FormatCSV:
		return MIMECSV
	case constants.FormatExcel:
		return MIMEExcel
	default:
		return MIMEJSON
	}
}

// ExtFor returns the file extension served for a format.
func ExtFor(format constants.ExportFormat) string {
	switch format {
	case constants.FormatCSV:
		return "csv"
	case constants.FormatExcel:
		return "xlsx"
	default:
		return "json"
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify collapses a human name into a safe filename stem.
func Slugify(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "export"
	}
	return s
}

func (f *Formatter) filename(name, ext string) string {
	return fmt.Sprintf("%s-%s.%s", Slugify(name), f.now().UTC().Format("20060102-150405"), ext)
}
