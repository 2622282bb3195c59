package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// SQLiteStore persists the completed set in a single-file SQLite database.
// SQLite serializes writes, so the store is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the progress database at dbPath. The schema
// is created automatically on first use.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to open progress database")
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.SystemError, "failed to migrate progress database")
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS completed_meetings (
		meeting_id   TEXT PRIMARY KEY,
		completed_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the set of completed meeting IDs. The map is non-nil even
// when empty.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT meeting_id FROM completed_meetings`)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to load progress")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.SystemError, "failed to scan progress row")
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to read progress rows")
	}
	return done, nil
}

// Save replaces the stored set with done, in one transaction. IDs mapped to
// false are treated as absent.
func (s *SQLiteStore) Save(ctx context.Context, done map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to begin progress transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM completed_meetings`); err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to clear progress")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for id, ok := range done {
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completed_meetings (meeting_id, completed_at) VALUES (?, ?)`,
			id, now,
		); err != nil {
			return errors.Wrap(err, errors.SystemError, "failed to record completed meeting")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to commit progress")
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
