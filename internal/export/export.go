package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lox/welltest/internal/calc"
	"github.com/lox/welltest/internal/table"
)

const SheetName = "Data"

// Format is an export file format.
type Format string

const (
	JSONFormat Format = "json"
	CSVFormat  Format = "csv"
	XLSXFormat Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSONFormat, CSVFormat, XLSXFormat:
		return f, nil
	case "":
		return JSONFormat, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case CSVFormat:
		return "text/csv; charset=utf-8"
	case XLSXFormat:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Write encodes g in format f.
func Write(w io.Writer, f Format, g *table.Grid, reg *table.Registry) error {
	switch f {
	case CSVFormat:
		return CSV(w, g)
	case XLSXFormat:
		return XLSX(w, g, reg)
	default:
		return JSON(w, g)
	}
}

// JSON writes the persisted table format.
func JSON(w io.Writer, g *table.Grid) error {
	data, err := table.Serialize(g)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// CSV writes the header line followed by every row.
func CSV(w io.Writer, g *table.Grid) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(g.Headers()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(g.Rows()); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// XLSX writes a single-sheet workbook with a bold header row. Cells in
// columns whose definition is numeric are stored as numbers when they parse.
func XLSX(w io.Writer, g *table.Grid, reg *table.Registry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headers := make([]any, g.ColumnCount())
	for i, h := range g.Headers() {
		headers[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	numeric := make([]bool, g.ColumnCount())
	if reg != nil {
		for i := range numeric {
			if def, ok := reg.At(i); ok {
				numeric[i] = def.Type.IsNumeric()
			}
		}
	}

	for r, row := range g.Rows() {
		values := make([]any, len(row))
		for c, cell := range row {
			values[c] = cell
			if numeric[c] {
				if v, ok := calc.ParseNumber(cell); ok {
					values[c] = v
				}
			}
		}
		cellName, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cellName, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if g.ColumnCount() > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("create header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(g.ColumnCount(), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
