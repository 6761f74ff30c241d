// Package workbook renders analytics export sheets as an XLSX file.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/CamDog38/ShopDelta/internal/analytics"
)

const (
	minColumnWidth = 10
	maxColumnWidth = 48
)

// Writer renders sheets with bold headers, a frozen header row and per-column number formats.
type Writer struct{}

// Write implements analytics.WorkbookWriter.
func (Writer) Write(w io.Writer, sheets []analytics.Sheet) error {
	if len(sheets) == 0 {
		return errors.New("workbook: no sheets to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	formats := map[analytics.Format]int{}
	for _, format := range []analytics.Format{analytics.FormatInteger, analytics.FormatMoney, analytics.FormatPercent} {
		code := format.NumFmt()
		id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
		if err != nil {
			return err
		}
		formats[format] = id
	}

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet, header, formats); err != nil {
			return fmt.Errorf("write sheet %s: %w", sheet.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet analytics.Sheet, header int, formats map[analytics.Format]int) error {
	widths := make([]int, len(sheet.Columns))
	for c, col := range sheet.Columns {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet.Name, cell, col.Header); err != nil {
			return err
		}
		widths[c] = utf8.RuneCountInString(col.Header)
	}
	if len(sheet.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(sheet.Columns), 1)
		if err := f.SetCellStyle(sheet.Name, "A1", last, header); err != nil {
			return err
		}
	}

	for r, row := range sheet.Rows {
		for c, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet.Name, cell, value); err != nil {
				return err
			}
			if c < len(widths) {
				if s, ok := value.(string); ok && utf8.RuneCountInString(s) > widths[c] {
					widths[c] = utf8.RuneCountInString(s)
				}
			}
		}
	}

	for c, col := range sheet.Columns {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if style, ok := formats[col.Format]; ok && len(sheet.Rows) > 0 {
			if err := f.SetCellStyle(sheet.Name, name+"2", fmt.Sprintf("%s%d", name, len(sheet.Rows)+1), style); err != nil {
				return err
			}
		}
		width := widths[c] + 2
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(sheet.Name, name, name, float64(width)); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
