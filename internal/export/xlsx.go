// Package export renders extracted cells as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/table-extractor/internal/domain"
)

// SheetName is the worksheet the tables are written to
const SheetName = "Tables"

// SplitTables cuts the flat cell list back into tables. A table starts at
// every cell anchored at row 0, column 0.
func SplitTables(cells []domain.TableCell) [][]domain.TableCell {
	var tables [][]domain.TableCell
	for _, c := range cells {
		if len(tables) == 0 || (c.RowStart == 0 && c.ColStart == 0) {
			tables = append(tables, nil)
		}
		n := len(tables) - 1
		tables[n] = append(tables[n], c)
	}
	return tables
}

// WriteXLSX writes every table into one sheet, stacked vertically with a
// blank row between them. Cells spanning several rows or columns are merged.
func WriteXLSX(w io.Writer, cells []domain.TableCell) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	offset := 0
	for _, table := range SplitTables(cells) {
		height := 0
		for _, c := range table {
			top, _ := excelize.CoordinatesToCellName(c.ColStart+1, offset+c.RowStart+1)
			if err := f.SetCellValue(SheetName, top, c.Text); err != nil {
				return fmt.Errorf("set %s: %w", top, err)
			}
			if c.RowEnd > c.RowStart || c.ColEnd > c.ColStart {
				bottom, _ := excelize.CoordinatesToCellName(c.ColEnd+1, offset+c.RowEnd+1)
				if err := f.MergeCell(SheetName, top, bottom); err != nil {
					return fmt.Errorf("merge %s:%s: %w", top, bottom, err)
				}
			}
			height = max(height, c.RowEnd+1)
		}
		offset += height + 1
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook to path
func SaveXLSX(path string, cells []domain.TableCell) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteXLSX(out, cells); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
