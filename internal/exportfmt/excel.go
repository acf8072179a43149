package exportfmt

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/docstreamhq/docstream/constants"
)

// toExcel produces a single-sheet workbook with the same tabular layout as the
// CSV export.
func (f *Formatter) toExcel(name string, results []DocumentResult) (FormattedExport, error) {
	wb := excelize.NewFile()
	const sheet = "Extracted Fields"
	index, err := wb.NewSheet(sheet)
	if err != nil {
		return FormattedExport{}, fmt.Errorf("xlsx sheet: %w", err)
	}
	wb.SetActiveSheet(index)
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return FormattedExport{}, fmt.Errorf("xlsx drop default sheet: %w", err)
	}

	for i, h := range csvHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = wb.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range results {
		for _, field := range r.Result.ExtractedFields {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = wb.SetCellValue(sheet, cell, v)
			}
			write(1, r.Document)
			write(2, field.Name)
			write(3, CellValue(field.Value))
			if field.Confidence != nil {
				write(4, *field.Confidence)
			} else {
				write(4, "")
			}
			row++
		}
	}

	// Widen a few columns
	_ = wb.SetColWidth(sheet, "A", "A", 32) // document
	_ = wb.SetColWidth(sheet, "B", "B", 28) // field name
	_ = wb.SetColWidth(sheet, "C", "C", 48) // value
	_ = wb.SetColWidth(sheet, "D", "D", 12) // confidence

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return FormattedExport{}, fmt.Errorf("xlsx write: %w", err)
	}

	return FormattedExport{
		Format:   constants.FormatExcel,
		Filename: f.filename(name, "xlsx"),
		MIMEType: MIMEExcel,
		Data:     buf.Bytes(),
	}, nil
}
