package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lox/welltest/internal/models"
)

type Store struct {
	db *sql.DB

	// busyTimeout bounds retries of writes that find the project file locked.
	busyTimeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, busyTimeout: 5 * time.Second}
}

// Project identifies the analysis a project file belongs to.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnsureProject returns the project row, creating it with a fresh id on first
// use.
func (s *Store) EnsureProject(ctx context.Context, name string) (*Project, error) {
	p, err := s.GetProject(ctx)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	now := time.Now().UTC()
	p = &Project{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	err = s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO project (id, name, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, p.ID, p.Name, p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM project LIMIT 1`).
		Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// SaveTable replaces the stored table JSON and the column definitions in one
// transaction.
func (s *Store) SaveTable(ctx context.Context, data []byte, defs []models.ColumnDefinition) error {
	return s.withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO table_data (id, data, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, string(data), now); err != nil {
			return fmt.Errorf("save table data: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM column_definitions`); err != nil {
			return fmt.Errorf("clear column definitions: %w", err)
		}
		for i, d := range defs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO column_definitions (ordinal, name, type, unit, is_required, decimal_places)
				VALUES (?, ?, ?, ?, ?, ?)
			`, i, d.Name, d.Type.String(), d.Unit, d.IsRequired, d.DecimalPlaces); err != nil {
				return fmt.Errorf("save column definition %d: %w", i, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE project SET updated_at = ?`, now); err != nil {
			return fmt.Errorf("touch project: %w", err)
		}
		return tx.Commit()
	})
}

// LoadTable returns the stored table JSON and column definitions. data is
// nil when nothing has been saved yet.
func (s *Store) LoadTable(ctx context.Context) (data []byte, defs []models.ColumnDefinition, err error) {
	var text string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM table_data WHERE id = 1`).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load table data: %w", err)
	}

	defs, err = s.GetColumnDefinitions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return []byte(text), defs, nil
}

func (s *Store) GetColumnDefinitions(ctx context.Context) ([]models.ColumnDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, unit, is_required, decimal_places
		FROM column_definitions
		ORDER BY ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("query column definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.ColumnDefinition
	for rows.Next() {
		var d models.ColumnDefinition
		var typ string
		if err := rows.Scan(&d.Name, &typ, &d.Unit, &d.IsRequired, &d.DecimalPlaces); err != nil {
			return nil, err
		}
		// Unknown names fall back to Custom.
		d.Type, _ = models.ParseColumnType(typ)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// ClearTable removes the stored table and definitions. Import history and
// raw sources are kept.
func (s *Store) ClearTable(ctx context.Context) error {
	return s.withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM table_data`); err != nil {
			return fmt.Errorf("clear table data: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM column_definitions`); err != nil {
			return fmt.Errorf("clear column definitions: %w", err)
		}
		return tx.Commit()
	})
}

// withBusyRetry reruns op while SQLite reports the database as busy or
// locked. Any other error stops immediately.
func (s *Store) withBusyRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = s.busyTimeout

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isBusy(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	code := e.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
