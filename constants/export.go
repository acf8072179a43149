package constants

// ExportType selects which source-record query feeds an export, not the algorithm.
type ExportType string

const (
	ExportTypeDocument ExportType = "document_export" // explicit document id list
	ExportTypeTemplate ExportType = "template_export" // all documents bound to one template
	ExportTypeBulk     ExportType = "bulk_export"     // filter-driven sweep
)

// ExportFormat is the artifact encoding chosen at job creation.
type ExportFormat string

const (
	FormatJSON       ExportFormat = "json"
	FormatCSV        ExportFormat = "csv"
	FormatExcel      ExportFormat = "excel"
	FormatStructured ExportFormat = "structured" // download-time re-format only, never a generation target
)

// GenerationFormats are the formats a job may be created with.
var GenerationFormats = []ExportFormat{FormatJSON, FormatCSV, FormatExcel}

func ValidExportType(t string) bool {
	switch ExportType(t) {
	case ExportTypeDocument, ExportTypeTemplate, ExportTypeBulk:
		return true
	}
	return false
}

func ValidGenerationFormat(f string) bool {
	for _, g := range GenerationFormats {
		if ExportFormat(f) == g {
			return true
		}
	}
	return false
}
