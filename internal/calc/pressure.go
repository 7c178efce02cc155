package calc

import (
	"errors"
	"strings"

	"github.com/lox/welltest/internal/models"
	"github.com/lox/welltest/internal/table"
)

var ErrNoPressureColumn = errors.New("no pressure column found, define column properties first")

// CalculatePressureDrop appends a column holding, for every row with a
// numeric pressure, the first valid pressure minus the row's pressure.
func CalculatePressureDrop(g *table.Grid, reg *table.Registry) models.PressureDropResult {
	if err := checkGrid(g); err != nil {
		return models.Failed(err)
	}
	if reg == nil {
		reg = table.NewRegistry()
	}

	src := FindPressureColumn(g, reg)
	if src < 0 {
		return models.Failed(ErrNoPressureColumn)
	}

	// A column found by header name may have no definition yet.
	srcDef, _ := reg.At(src)
	def := models.ColumnDefinition{
		Name:          `压降\` + srcDef.Unit,
		Type:          models.PressureDrop,
		Unit:          srcDef.Unit,
		DecimalPlaces: models.DefaultDecimalPlaces,
	}
	col := g.AppendColumn(def.Name)
	reg.Append(def)

	var (
		initial float64
		hasInit bool
		rows    int
	)
	for i := 0; i < g.RowCount(); i++ {
		p, ok := ParseNumber(g.Cell(i, src))
		if !ok {
			g.SetCell(i, col, "")
			continue
		}
		if !hasInit {
			initial, hasInit = p, true
		}
		g.SetCell(i, col, formatValue(initial-p))
		rows++
	}

	return models.PressureDropResult{
		Success:          true,
		AddedColumnIndex: col,
		ColumnName:       def.Name,
		ProcessedRows:    rows,
	}
}

// FindPressureColumn returns the first column typed Pressure in reg, falling
// back to the first header mentioning 压力 or pressure. It returns -1 when
// neither exists.
func FindPressureColumn(g *table.Grid, reg *table.Registry) int {
	if reg != nil {
		if i := reg.IndexOfType(models.Pressure); i >= 0 {
			return i
		}
	}
	for i := 0; i < g.ColumnCount(); i++ {
		h := g.Header(i)
		if strings.Contains(h, "压力") || strings.Contains(strings.ToLower(h), "pressure") {
			return i
		}
	}
	return -1
}
