package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/welltest/internal/api"
	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/export"
	"github.com/lox/welltest/internal/ingest"
	"github.com/lox/welltest/internal/models"
	"github.com/lox/welltest/internal/table"
)

type ImportCmd struct {
	Source    string `arg:"" help:"File path or ftp://, http:// or https:// URL."`
	Encoding  string `help:"Text encoding: utf-8, gbk or iso-8859-1." default:"utf-8"`
	Separator string `help:"Field separator: comma, tab, space or semicolon." default:"comma"`
	StartRow  int    `help:"First data line (1-based)." default:"1"`
	HeaderRow int    `help:"Header line (1-based)." default:"1"`
	NoHeader  bool   `help:"The source has no header line."`
	Excel     bool   `help:"Read the source as a workbook regardless of its extension."`
}

func (c *ImportCmd) settings() (ingest.Settings, error) {
	s := ingest.DefaultSettings(c.Source)
	var err error
	if s.Encoding, err = ingest.ParseEncoding(c.Encoding); err != nil {
		return s, err
	}
	if s.Separator, err = ingest.ParseSeparator(c.Separator); err != nil {
		return s, err
	}
	s.StartRow = c.StartRow
	s.HeaderRow = c.HeaderRow
	s.UseHeader = !c.NoHeader
	s.IsExcel = s.IsExcel || c.Excel
	return s, nil
}

func (c *ImportCmd) Run(app *App) error {
	s, err := c.settings()
	if err != nil {
		return err
	}
	ctx := context.Background()
	sum, err := app.Editor.Import(ctx, s)
	if err != nil {
		return err
	}
	if err := app.Editor.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "imported %s (%s): %d rows, %d columns\n",
		sum.Source, humanize.Bytes(uint64(sum.SizeBytes)), sum.Rows, sum.Columns)
	return nil
}

type ShowCmd struct {
	Limit       int  `help:"Print at most this many rows (0 for all)." default:"20"`
	Definitions bool `short:"d" help:"Print column definitions instead of rows."`
}

func (c *ShowCmd) Run(app *App) error {
	snap := app.Editor.Snapshot()
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)

	if c.Definitions {
		fmt.Fprintln(tw, "#\tNAME\tTYPE\tUNIT\tDECIMALS\tREQUIRED")
		for i, d := range snap.Definitions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%t\n", i, d.Name, d.Type, d.Unit, d.DecimalPlaces, d.IsRequired)
		}
		return tw.Flush()
	}

	if len(snap.Headers) == 0 {
		fmt.Fprintln(app.Out, "no data")
		return nil
	}
	fmt.Fprintln(tw, "#\t"+strings.Join(snap.Headers, "\t"))
	for i, row := range snap.Rows {
		if c.Limit > 0 && i >= c.Limit {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if c.Limit > 0 && len(snap.Rows) > c.Limit {
		fmt.Fprintf(app.Out, "... %d more rows\n", len(snap.Rows)-c.Limit)
	}
	return nil
}

type DefineCmd struct {
	Columns []string `arg:"" help:"One NAME:TYPE[:UNIT[:DECIMALS[:required]]] per column, in order."`
}

func (c *DefineCmd) Run(app *App) error {
	defs := make([]models.ColumnDefinition, 0, len(c.Columns))
	for _, arg := range c.Columns {
		d, err := parseColumnArg(arg)
		if err != nil {
			return err
		}
		defs = append(defs, d)
	}
	app.Editor.DefineColumns(defs)
	return app.Editor.Save(context.Background())
}

// parseColumnArg reads NAME:TYPE[:UNIT[:DECIMALS[:required]]].
func parseColumnArg(arg string) (models.ColumnDefinition, error) {
	parts := strings.Split(arg, ":")
	d := models.NewColumnDefinition(parts[0])
	if d.Name == "" {
		return d, fmt.Errorf("column %q: empty name", arg)
	}
	if len(parts) > 1 {
		t, err := models.ParseColumnType(parts[1])
		if err != nil {
			return d, fmt.Errorf("column %q: %w", arg, err)
		}
		d.Type = t
	}
	if len(parts) > 2 {
		d.Unit = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 0 {
			return d, fmt.Errorf("column %q: invalid decimal places %q", arg, parts[3])
		}
		d.DecimalPlaces = n
	}
	if len(parts) > 4 {
		d.IsRequired = strings.EqualFold(parts[4], "required")
	}
	if len(parts) > 5 {
		return d, fmt.Errorf("column %q: too many fields", arg)
	}
	return d, nil
}

type TimeConvertCmd struct {
	DateColumn   int    `help:"Date column (0-based); requires --time-column." default:"-1"`
	TimeColumn   int    `help:"Time-of-day column (0-based), read with --date-column." default:"-1"`
	SourceColumn int    `help:"Time-of-day column read on its own, rolling over midnight." default:"0"`
	Name         string `help:"Name of the new column; the unit is appended." default:"时间"`
	Unit         string `help:"Output unit." enum:"h,min,s" default:"h"`
}

func (c *TimeConvertCmd) config() models.TimeConversionConfig {
	cfg := models.DefaultTimeConversionConfig()
	cfg.NewColumnName = c.Name
	cfg.OutputUnit = models.TimeUnit(c.Unit)
	if c.DateColumn >= 0 && c.TimeColumn >= 0 {
		cfg.UseDateAndTime = true
		cfg.DateColumnIndex = c.DateColumn
		cfg.TimeColumnIndex = c.TimeColumn
	} else {
		cfg.SourceTimeColumnIndex = c.SourceColumn
	}
	return cfg
}

func (c *TimeConvertCmd) Run(app *App) error {
	return runCalculation(app, app.Editor.ConvertTime(c.config()))
}

type PressureDropCmd struct{}

func (c *PressureDropCmd) Run(app *App) error {
	return runCalculation(app, app.Editor.PressureDrop())
}

func runCalculation(app *App, res models.CalculationResult) error {
	if err := res.Err(); err != nil {
		return err
	}
	if err := app.Editor.Save(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "added %q at column %d (%d rows)\n", res.ColumnName, res.AddedColumnIndex, res.ProcessedRows)
	return nil
}

type RowCmd struct {
	Add    RowAddCmd    `cmd:"" help:"Insert an empty row."`
	Delete RowDeleteCmd `cmd:"" help:"Delete rows by index."`
}

type RowAddCmd struct {
	Position string `help:"end, above or below." enum:"end,above,below" default:"end"`
	Current  int    `help:"Selected row (0-based), or -1 for none." default:"-1"`
}

func (c *RowAddCmd) Run(app *App) error {
	pos, err := editor.ParsePosition(c.Position)
	if err != nil {
		return err
	}
	at := app.Editor.AddRow(pos, c.Current)
	if err := app.Editor.Save(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "added row %d\n", at)
	return nil
}

type RowDeleteCmd struct {
	Rows []int `arg:"" help:"Row indices (0-based)."`
}

func (c *RowDeleteCmd) Run(app *App) error {
	n := app.Editor.DeleteRows(c.Rows)
	if err := app.Editor.Save(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "deleted %d rows\n", n)
	return nil
}

type ColumnCmd struct {
	Add    ColumnAddCmd    `cmd:"" help:"Insert an empty column."`
	Delete ColumnDeleteCmd `cmd:"" help:"Delete columns by index."`
}

type ColumnAddCmd struct {
	Position string `help:"end, left or right." enum:"end,left,right" default:"end"`
	Current  int    `help:"Selected column (0-based), or -1 for none." default:"-1"`
}

func (c *ColumnAddCmd) Run(app *App) error {
	pos, err := editor.ParsePosition(c.Position)
	if err != nil {
		return err
	}
	at := app.Editor.AddColumn(pos, c.Current)
	if err := app.Editor.Save(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "added column %d\n", at)
	return nil
}

type ColumnDeleteCmd struct {
	Columns []int `arg:"" help:"Column indices (0-based)."`
}

func (c *ColumnDeleteCmd) Run(app *App) error {
	n := app.Editor.DeleteColumns(c.Columns)
	if err := app.Editor.Save(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "deleted %d columns\n", n)
	return nil
}

type SearchCmd struct {
	Pattern string `arg:"" help:"Wildcard pattern (* and ?), case-insensitive."`
}

func (c *SearchCmd) Run(app *App) error {
	rows := app.Editor.Search(c.Pattern)
	snap := app.Editor.Snapshot()
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	for _, i := range rows {
		fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(snap.Rows[i], "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%d matching rows\n", len(rows))
	return nil
}

type ExportCmd struct {
	Output string `arg:"" help:"Output file, or - for stdout."`
	Format string `help:"json, csv or xlsx; defaults to the output extension."`
}

func (c *ExportCmd) Run(app *App) error {
	name := c.Format
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(c.Output), ".")
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return err
	}

	out := app.Out
	if c.Output != "-" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	return app.Editor.View(func(g *table.Grid, reg *table.Registry) error {
		return export.Write(out, format, g, reg)
	})
}

type HistoryCmd struct {
	Limit int `help:"Number of runs to list." default:"10"`
}

func (c *HistoryCmd) Run(app *App) error {
	runs, err := app.Editor.ImportHistory(c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tFORMAT\tSIZE\tROWS\tSTATUS\tSOURCE")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.ErrorMessage.String
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Format, humanize.Bytes(uint64(r.SizeBytes.Int64)),
			r.RowsImported.Int64, status, r.Source)
	}
	return tw.Flush()
}

type ClearCmd struct{}

func (c *ClearCmd) Run(app *App) error {
	return app.Editor.Clear(context.Background())
}

type ServeCmd struct {
	Addr     string        `help:"Listen address." default:":8080" env:"WELLTEST_ADDR"`
	Watch    string        `help:"Re-import this source periodically (e.g. an FTP logger export)."`
	Interval time.Duration `help:"Re-import interval for --watch." default:"10m"`
}

func (c *ServeCmd) Run(app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.Watch != "" {
		scheduler := ingest.NewScheduler(app.Editor, ingest.DefaultSettings(c.Watch), c.Interval)
		go scheduler.Run(ctx)
	}

	log.Printf("serving project %s", app.Project)
	return api.NewServer(app.Editor, c.Addr).Run(ctx)
}
