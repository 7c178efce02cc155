package api

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/store"
)

// ColumnView is one column header as shown on the table page.
type ColumnView struct {
	Name string
	Type string
	Unit string
}

type TableView struct {
	Columns []ColumnView
	Rows    [][]string
	Empty   bool
}

func newTableView(snap editor.Snapshot) TableView {
	v := TableView{Rows: snap.Rows, Empty: len(snap.Rows) == 0 && len(snap.Headers) == 0}
	for i, h := range snap.Headers {
		col := ColumnView{Name: h}
		if i < len(snap.Definitions) {
			col.Type = snap.Definitions[i].Type.String()
			col.Unit = snap.Definitions[i].Unit
		}
		v.Columns = append(v.Columns, col)
	}
	return v
}

// ImportRunView is an import run for API responses.
type ImportRunView struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
	Format    string    `json:"format"`
	Size      string    `json:"size,omitempty"`
	Rows      int64     `json:"rows"`
	Columns   int64     `json:"columns"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func newImportRunViews(runs []store.ImportRun) []ImportRunView {
	views := make([]ImportRunView, 0, len(runs))
	for _, r := range runs {
		v := ImportRunView{
			ID:        r.ID,
			StartedAt: r.StartedAt,
			Source:    r.Source,
			Format:    r.Format,
			Rows:      r.RowsImported.Int64,
			Columns:   r.ColumnsImported.Int64,
			Success:   r.Success,
			Error:     r.ErrorMessage.String,
		}
		if r.SizeBytes.Valid {
			v.Size = humanize.Bytes(uint64(r.SizeBytes.Int64))
		}
		views = append(views, v)
	}
	return views
}
