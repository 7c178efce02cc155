package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawSource is the original bytes of an imported file.
type RawSource struct {
	ID                int64
	ImportRunID       sql.NullInt64
	FetchedAt         time.Time
	Source            string
	PayloadCompressed []byte
	PayloadHash       string
	SizeBytes         int64
}

// HashPayload returns the hex sha256 used to deduplicate raw sources.
func HashPayload(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// StoreRawSource keeps a compressed copy of an imported file.
// Returns the row ID, or 0 if identical bytes were already stored.
func (s *Store) StoreRawSource(runID *int64, source string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress source: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	var importRunID sql.NullInt64
	if runID != nil {
		importRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_sources
		(import_run_id, fetched_at, source, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, importRunID, time.Now().UTC(), source, buf.Bytes(), HashPayload(payload), len(payload))
	if err != nil {
		return 0, fmt.Errorf("insert raw source: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRawSource retrieves and decompresses a stored source by ID.
func (s *Store) GetRawSource(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_sources WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// GetRawSourceByHash looks a source up by its hash; nil when absent.
func (s *Store) GetRawSourceByHash(hash string) (*RawSource, error) {
	row := s.db.QueryRow(`
		SELECT id, import_run_id, fetched_at, source, payload_compressed, payload_hash, size_bytes
		FROM raw_sources WHERE payload_hash = ?
	`, hash)

	var r RawSource
	err := row.Scan(&r.ID, &r.ImportRunID, &r.FetchedAt, &r.Source,
		&r.PayloadCompressed, &r.PayloadHash, &r.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RawSourceStats summarises raw source storage.
type RawSourceStats struct {
	TotalCount      int
	TotalSizeBytes  int64 // uncompressed
	StoredSizeBytes int64 // compressed
}

func (s *Store) GetRawSourceStats() (*RawSourceStats, error) {
	var stats RawSourceStats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(LENGTH(payload_compressed)), 0)
		FROM raw_sources
	`).Scan(&stats.TotalCount, &stats.TotalSizeBytes, &stats.StoredSizeBytes)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
