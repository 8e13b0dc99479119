package reports

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the only sheet of generated workbooks.
const SheetName = "Rapor"

// WriteXLSX writes doc as a single-sheet workbook. Titles and header rows
// are bold; amounts stay text so the two-decimal formatting is kept.
func WriteXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	put := func(values []string, style bool) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return err
		}
		if style && len(values) > 0 {
			last, err := excelize.CoordinatesToCellName(len(values), row)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(SheetName, cell, last, bold); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	if err := put([]string{doc.Title}, true); err != nil {
		return err
	}
	for _, b := range doc.Blocks {
		row++ // blank line between blocks
		if b.Title != "" {
			if err := put([]string{b.Title}, true); err != nil {
				return err
			}
		}
		for i, r := range b.Rows {
			if err := put(r, b.Header && i == 0); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(SheetName, "A", "F", 18); err != nil {
		return err
	}
	return f.Write(w)
}
