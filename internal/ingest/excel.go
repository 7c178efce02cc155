package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// ParseExcel reads the first worksheet of an .xlsx workbook. Cells are taken
// as displayed, without trimming.
func ParseExcel(data []byte, s Settings) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook (legacy .xls must be saved as .xlsx or CSV): %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	return collect(len(rows), s, func(i int) ([]string, bool, error) {
		return rows[i], true, nil
	})
}

// Parse dispatches data to the text or spreadsheet parser.
func Parse(data []byte, s Settings) (*Table, error) {
	switch DetectFormat(s) {
	case FormatExcel:
		return ParseExcel(data, s)
	case FormatText:
		return ParseText(data, s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, s.Source)
	}
}
