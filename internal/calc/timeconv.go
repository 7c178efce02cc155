package calc

import (
	"errors"
	"time"

	"github.com/lox/welltest/internal/models"
	"github.com/lox/welltest/internal/table"
)

var (
	ErrNilGrid = errors.New("data model is empty")
	ErrNoRows  = errors.New("no data")
)

// elapsedDay is the calendar date that time-only values are placed on. It
// only has to be the same for every row of a pass.
var elapsedDay = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ConvertTimeColumn appends a column holding each row's elapsed time since
// the first row that parsed, expressed in cfg.OutputUnit. Rows that fail to
// parse get an empty cell and are not counted.
func ConvertTimeColumn(g *table.Grid, reg *table.Registry, cfg models.TimeConversionConfig) models.TimeConversionResult {
	if err := checkGrid(g); err != nil {
		return models.Failed(err)
	}
	if reg == nil {
		reg = table.NewRegistry()
	}

	unit := string(cfg.OutputUnit)
	def := models.ColumnDefinition{
		Name:          cfg.NewColumnName + `\` + unit,
		Type:          models.Time,
		Unit:          unit,
		DecimalPlaces: models.DefaultDecimalPlaces,
	}
	col := g.AppendColumn(def.Name)
	reg.Append(def)

	var (
		base    time.Time
		hasBase bool
		rows    int
	)
	for i := 0; i < g.RowCount(); i++ {
		at, ok := rowInstant(g, i, cfg)
		if !ok {
			g.SetCell(i, col, "")
			continue
		}
		if !cfg.UseDateAndTime && hasBase && at.Before(base) {
			at = at.AddDate(0, 0, 1)
		}
		if !hasBase {
			base, hasBase = at, true
		}

		seconds := at.Sub(base).Seconds()
		g.SetCell(i, col, formatValue(ConvertSeconds(seconds, unit)))
		rows++
	}

	return models.TimeConversionResult{
		Success:          true,
		AddedColumnIndex: col,
		ColumnName:       def.Name,
		ProcessedRows:    rows,
	}
}

// rowInstant builds the comparable instant for row i, or false when a
// required field does not parse.
func rowInstant(g *table.Grid, i int, cfg models.TimeConversionConfig) (time.Time, bool) {
	if cfg.UseDateAndTime {
		day, ok := ParseDate(g.Cell(i, cfg.DateColumnIndex))
		if !ok {
			return time.Time{}, false
		}
		clock, ok := ParseTime(g.Cell(i, cfg.TimeColumnIndex))
		if !ok {
			return time.Time{}, false
		}
		return day.Add(clock), true
	}

	clock, ok := ParseTime(g.Cell(i, cfg.SourceTimeColumnIndex))
	if !ok {
		return time.Time{}, false
	}
	return elapsedDay.Add(clock), true
}

func checkGrid(g *table.Grid) error {
	if g == nil {
		return ErrNilGrid
	}
	if g.RowCount() == 0 {
		return ErrNoRows
	}
	return nil
}
