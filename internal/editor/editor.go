package editor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/welltest/internal/calc"
	"github.com/lox/welltest/internal/ingest"
	"github.com/lox/welltest/internal/metrics"
	"github.com/lox/welltest/internal/models"
	"github.com/lox/welltest/internal/store"
	"github.com/lox/welltest/internal/table"
)

const NewColumnName = "新列"

var (
	ErrNoProject = errors.New("no project file open")
	ErrNoCell    = errors.New("cell out of range")
)

// Position says where a new row or column goes relative to the current one.
type Position int

const (
	End Position = iota
	Before
	After
)

// ParsePosition accepts end, above/left (before) and below/right (after).
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "end":
		return End, nil
	case "above", "left", "before":
		return Before, nil
	case "below", "right", "after":
		return After, nil
	}
	return End, fmt.Errorf("unknown position %q", s)
}

// Editor is one editing session over a table and its column definitions.
// All methods are safe for concurrent use.
type Editor struct {
	mu      sync.Mutex
	grid    *table.Grid
	reg     *table.Registry
	store   *store.Store
	fetcher *ingest.Fetcher
}

// New returns an empty editor. st may be nil, in which case Save and
// LoadFromProject fail with ErrNoProject.
func New(st *store.Store, fetcher *ingest.Fetcher) *Editor {
	if fetcher == nil {
		fetcher = ingest.NewFetcher()
	}
	return &Editor{
		grid:    table.NewGrid(),
		reg:     table.NewRegistry(),
		store:   st,
		fetcher: fetcher,
	}
}

// Snapshot is a copy of the editor's table.
type Snapshot struct {
	Headers     []string                  `json:"headers"`
	Rows        [][]string                `json:"rows"`
	Definitions []models.ColumnDefinition `json:"definitions"`
}

func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Headers:     e.grid.Headers(),
		Rows:        e.grid.Rows(),
		Definitions: e.reg.All(),
	}
}

// View runs fn with the live grid and registry under the editor lock. fn
// must not retain them.
func (e *Editor) View(fn func(g *table.Grid, reg *table.Registry) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.grid, e.reg)
}

func (e *Editor) HasData() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.RowCount() > 0
}

// Clear empties the table and column definitions, and removes them from the
// project file when one is open. Import history is kept.
func (e *Editor) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.grid.Clear()
	e.reg.Clear()
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	if err := e.store.ClearTable(ctx); err != nil {
		return fmt.Errorf("clear project table: %w", err)
	}
	log.Printf("editor: cleared table")
	return nil
}

// Import loads the source described by s, replacing the current table. The
// current table is left untouched when the import fails.
func (e *Editor) Import(ctx context.Context, s ingest.Settings) (ingest.Summary, error) {
	return e.importWith(s, func() ([]byte, error) {
		data, err := e.fetcher.Fetch(ctx, s.Source)
		if err != nil {
			return nil, fmt.Errorf("fetch source: %w", err)
		}
		return data, nil
	})
}

// ImportData is Import for bytes already in hand, such as an upload. s.Source
// names the file and selects the parser.
func (e *Editor) ImportData(s ingest.Settings, data []byte) (ingest.Summary, error) {
	return e.importWith(s, func() ([]byte, error) { return data, nil })
}

func (e *Editor) importWith(s ingest.Settings, read func() ([]byte, error)) (ingest.Summary, error) {
	format := ingest.DetectFormat(s)
	sum := ingest.Summary{Source: s.Source, Format: format}

	if err := s.Check(); err != nil {
		metrics.ImportsTotal.WithLabelValues(string(format), "error").Inc()
		return sum, err
	}
	s = s.Canonical()

	var run *store.ImportRun
	if e.store != nil {
		var err error
		run, err = e.store.StartImportRun(s.Source, string(format))
		if err != nil {
			log.Printf("editor: start import run: %v", err)
		}
	}

	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	grid, reg, size, err := e.load(s, format, read, runID)
	sum.SizeBytes = size
	if err == nil {
		sum.Rows, sum.Columns = grid.RowCount(), grid.ColumnCount()
	}
	e.finishRun(run, sum, err)
	metrics.ImportsTotal.WithLabelValues(string(format), metrics.Status(err)).Inc()
	if err != nil {
		return sum, err
	}

	e.mu.Lock()
	e.grid, e.reg = grid, reg
	e.mu.Unlock()

	metrics.RowsImported.WithLabelValues(string(format)).Add(float64(sum.Rows))
	log.Printf("editor: imported %s (%s): %d rows, %d columns",
		s.Source, humanize.Bytes(uint64(size)), sum.Rows, sum.Columns)
	return sum, nil
}

// LoadFile imports path with default settings.
func (e *Editor) LoadFile(ctx context.Context, path string) (ingest.Summary, error) {
	return e.Import(ctx, ingest.DefaultSettings(path))
}

func (e *Editor) load(s ingest.Settings, format ingest.Format, read func() ([]byte, error), runID *int64) (*table.Grid, *table.Registry, int, error) {
	data, err := read()
	if err != nil {
		return nil, nil, 0, err
	}

	grid, reg := table.NewGrid(), table.NewRegistry()
	if format == ingest.FormatJSON {
		if err := table.Deserialize(data, grid, reg); err != nil {
			return nil, nil, len(data), fmt.Errorf("parse table: %w", err)
		}
	} else {
		t, err := ingest.Parse(data, s)
		if err != nil {
			return nil, nil, len(data), fmt.Errorf("parse source: %w", err)
		}
		grid.SetHeaders(t.Headers)
		for _, row := range t.Rows {
			grid.AppendRow(row)
		}
	}
	reg.Reconcile(grid.Headers())

	if e.store != nil {
		if _, err := e.store.StoreRawSource(runID, s.Source, data); err != nil {
			log.Printf("editor: keep raw source: %v", err)
		}
	}
	return grid, reg, len(data), nil
}

func (e *Editor) finishRun(run *store.ImportRun, sum ingest.Summary, err error) {
	if run == nil {
		return
	}
	run.SizeBytes = sql.NullInt64{Int64: int64(sum.SizeBytes), Valid: sum.SizeBytes > 0}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		run.Success = true
		run.RowsImported = sql.NullInt64{Int64: int64(sum.Rows), Valid: true}
		run.ColumnsImported = sql.NullInt64{Int64: int64(sum.Columns), Valid: true}
	}
	if err := e.store.CompleteImportRun(run); err != nil {
		log.Printf("editor: complete import run: %v", err)
	}
}

// DefineColumns replaces the column definitions and renames the leading
// headers after them.
func (e *Editor) DefineColumns(defs []models.ColumnDefinition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reg.Replace(defs)
	for i := 0; i < len(defs) && i < e.grid.ColumnCount(); i++ {
		e.grid.SetHeader(i, defs[i].Name)
	}
}

// ConvertTime appends an elapsed-time column.
func (e *Editor) ConvertTime(cfg models.TimeConversionConfig) models.TimeConversionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := calc.ConvertTimeColumn(e.grid, e.reg, cfg)
	record("time_conversion", res)
	return res
}

// PressureDrop appends a pressure-drop column.
func (e *Editor) PressureDrop() models.PressureDropResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := calc.CalculatePressureDrop(e.grid, e.reg)
	record("pressure_drop", res)
	return res
}

func record(op string, res models.CalculationResult) {
	metrics.CalculationsTotal.WithLabelValues(op, metrics.Status(res.Err())).Inc()
	if !res.Success {
		log.Printf("editor: %s: %s", op, res.ErrorMessage)
		return
	}
	metrics.RowsProcessed.WithLabelValues(op).Add(float64(res.ProcessedRows))
	log.Printf("editor: %s: added %q at column %d, %d rows", op, res.ColumnName, res.AddedColumnIndex, res.ProcessedRows)
}

// SetCell edits one cell.
func (e *Editor) SetCell(row, col int, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.grid.SetCell(row, col, text) {
		return fmt.Errorf("%w: row %d, column %d", ErrNoCell, row, col)
	}
	return nil
}

// AddRow inserts an empty row and returns its index. current is the
// selected row, or negative for none. With no selection Before and After
// append, and End appends; End with a selection inserts below it.
func (e *Editor) AddRow(pos Position, current int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.grid.RowCount()
	if current >= 0 && current < e.grid.RowCount() {
		if pos == Before {
			at = current
		} else {
			at = current + 1
		}
	}

	width := e.grid.ColumnCount()
	if width == 0 {
		width = 1
	}
	e.grid.InsertRow(at, make([]string, width))
	return at
}

// DeleteRows removes the given rows. Duplicates and out-of-range indices are
// ignored. It returns how many rows were removed.
func (e *Editor) DeleteRows(rows []int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, r := range descendingUnique(rows) {
		if e.grid.RemoveRow(r) {
			n++
		}
	}
	return n
}

// AddColumn inserts an empty column named NewColumnName and returns its
// index. current is the selected column, or negative for none; End always
// appends.
func (e *Editor) AddColumn(pos Position, current int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.grid.ColumnCount()
	if pos != End && current >= 0 && current < e.grid.ColumnCount() {
		if pos == Before {
			at = current
		} else {
			at = current + 1
		}
	}

	at = e.grid.InsertColumn(at)
	e.grid.SetHeader(at, NewColumnName)
	e.reg.Insert(at, models.NewColumnDefinition(NewColumnName))
	return at
}

// DeleteColumns removes the given columns along with their definitions.
func (e *Editor) DeleteColumns(cols []int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range descendingUnique(cols) {
		if e.grid.RemoveColumn(c) {
			e.reg.Remove(c)
			n++
		}
	}
	return n
}

// Search returns the rows with a cell matching the wildcard pattern.
func (e *Editor) Search(pattern string) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Match(pattern)
}

// Save writes the table and its column definitions to the project file.
func (e *Editor) Save(ctx context.Context) error {
	if e.store == nil {
		return ErrNoProject
	}

	e.mu.Lock()
	data, err := table.Serialize(e.grid)
	defs := e.reg.All()
	rows := e.grid.RowCount()
	e.mu.Unlock()
	if err != nil {
		metrics.ProjectSaves.WithLabelValues("error").Inc()
		return err
	}

	start := time.Now()
	err = e.store.SaveTable(ctx, data, defs)
	metrics.ProjectSaves.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	log.Printf("editor: saved %d rows (%s) in %v", rows, humanize.Bytes(uint64(len(data))), time.Since(start).Round(time.Millisecond))
	return nil
}

// LoadFromProject restores the table saved in the project file. Saved
// column definitions are applied when they still name the restored headers
// one for one; otherwise every column gets a default definition. An empty
// project clears the editor.
func (e *Editor) LoadFromProject(ctx context.Context) error {
	if e.store == nil {
		return ErrNoProject
	}

	data, defs, err := e.store.LoadTable(ctx)
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}

	grid, reg := table.NewGrid(), table.NewRegistry()
	if data != nil {
		if err := table.Deserialize(data, grid, reg); err != nil {
			return fmt.Errorf("restore table: %w", err)
		}
		if namesMatch(defs, grid.Headers()) {
			reg.Replace(defs)
		}
		reg.Reconcile(grid.Headers())
	}

	e.mu.Lock()
	e.grid, e.reg = grid, reg
	e.mu.Unlock()

	log.Printf("editor: loaded %d rows, %d columns from project", grid.RowCount(), grid.ColumnCount())
	return nil
}

func namesMatch(defs []models.ColumnDefinition, headers []string) bool {
	if len(defs) != len(headers) {
		return false
	}
	for i, d := range defs {
		if d.Name != headers[i] {
			return false
		}
	}
	return true
}

func descendingUnique(idx []int) []int {
	seen := make(map[int]bool, len(idx))
	var out []int
	for _, i := range idx {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// ImportHistory returns the most recent import runs recorded in the project.
func (e *Editor) ImportHistory(limit int) ([]store.ImportRun, error) {
	if e.store == nil {
		return nil, ErrNoProject
	}
	return e.store.RecentImportRuns(limit)
}
