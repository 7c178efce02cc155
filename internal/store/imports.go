package store

import (
	"database/sql"
	"time"
)

// ImportRun records one attempt to load a source into the table.
type ImportRun struct {
	ID              int64
	StartedAt       time.Time
	FinishedAt      sql.NullTime
	Source          string
	Format          string // "text", "excel", "json"
	SizeBytes       sql.NullInt64
	RowsImported    sql.NullInt64
	ColumnsImported sql.NullInt64
	Success         bool
	ErrorMessage    sql.NullString
}

// StartImportRun creates a new import run record and returns it.
func (s *Store) StartImportRun(source, format string) (*ImportRun, error) {
	run := &ImportRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Format:    format,
	}

	result, err := s.db.Exec(`
		INSERT INTO import_runs (started_at, source, format, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Format)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteImportRun updates the run with its outcome.
func (s *Store) CompleteImportRun(run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE import_runs SET
			finished_at = ?,
			size_bytes = ?,
			rows_imported = ?,
			columns_imported = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.SizeBytes, run.RowsImported, run.ColumnsImported,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentImportRuns returns the latest runs, newest first.
func (s *Store) RecentImportRuns(limit int) ([]ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, format, size_bytes,
		       rows_imported, columns_imported, success, error_message
		FROM import_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Format,
			&r.SizeBytes, &r.RowsImported, &r.ColumnsImported, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
