// Package store persists accepted plate records in sqlite.
//
// Every operation is a single statement; the capture loop is the only writer,
// so no multi-statement transactions are needed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by DeleteOne when no matching record exists.
var ErrNotFound = errors.New("plate record not found")

const schema = `
	CREATE TABLE IF NOT EXISTS plates (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		code       TEXT NOT NULL,
		source     TEXT NOT NULL,
		ts         TIMESTAMP NOT NULL,
		image_ref  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_plates_code_source_ts ON plates(code, source, ts);
	CREATE INDEX IF NOT EXISTS idx_plates_ts ON plates(ts);
`

// Record is a persisted plate sighting.
type Record struct {
	ID       int64     `json:"id"`
	Code     string    `json:"plate"`
	Source   string    `json:"camera"`
	Time     time.Time `json:"timestamp"`
	ImageRef string    `json:"image_ref,omitempty"`
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and ensures
// the schema exists. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists an accepted sighting.
func (s *Store) Insert(ctx context.Context, code, source string, ts time.Time, imageRef string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plates (code, source, ts, image_ref) VALUES (?, ?, ?, ?)`,
		code, source, ts.UTC(), imageRef)
	if err != nil {
		return fmt.Errorf("insert plate: %w", err)
	}
	return nil
}

// ExistsWithin reports whether a record of (code, source) newer than
// windowStart exists.
func (s *Store) ExistsWithin(ctx context.Context, code, source string, windowStart time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plates WHERE code = ? AND source = ? AND ts > ?`,
		code, source, windowStart.UTC()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query recent plates: %w", err)
	}
	return n > 0, nil
}

// Latest returns the most recent records, newest first.
func (s *Store) Latest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, source, ts, COALESCE(image_ref, '') FROM plates ORDER BY ts DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query latest plates: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Code, &r.Source, &r.Time, &r.ImageRef); err != nil {
			return nil, fmt.Errorf("scan plate row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plates: %w", err)
	}
	return n, nil
}

// DeleteAll removes every record and resets the id sequence.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plates`); err != nil {
		return fmt.Errorf("delete plates: %w", err)
	}
	// Harmless when the sequence table has no row yet.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'plates'`)
	return nil
}

// DeleteOne removes a specific record. With a timestamp it deletes the exact
// sighting; without one it deletes the most recent sighting of the code.
func (s *Store) DeleteOne(ctx context.Context, code string, ts *time.Time) error {
	var res sql.Result
	var err error
	if ts != nil {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM plates WHERE code = ? AND ts = ?`, code, ts.UTC())
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM plates WHERE id = (
				SELECT id FROM plates WHERE code = ? ORDER BY ts DESC LIMIT 1
			)`, code)
	}
	if err != nil {
		return fmt.Errorf("delete plate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plate: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
