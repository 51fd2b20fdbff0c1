package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	label  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS samples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	engine      TEXT NOT NULL,
	name        TEXT NOT NULL,
	elapsed_ns  INTEGER NOT NULL,
	items       INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_name ON samples(name);
`

// SaveSQLite appends store to the SQLite database at path, creating the
// schema if needed.
func SaveSQLite(ctx context.Context, path string, store *Store) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, label) VALUES (?, ?)`,
		store.RunID(), store.Label(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples
		(run_id, engine, name, elapsed_ns, items, failed, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range store.All() {
		if _, err := stmt.ExecContext(ctx,
			s.RunID, s.Engine, s.Name, int64(s.Elapsed), s.Items, s.Failed, s.Error,
			s.RecordedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert sample %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadSQLite reads every sample in the database at path. When the file
// holds several runs the most recently saved run id and label are used
// for the store.
func LoadSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var runID, label string

	err = db.QueryRowContext(ctx,
		`SELECT run_id, label FROM runs ORDER BY rowid DESC LIMIT 1`,
	).Scan(&runID, &label)
	if err != nil {
		return nil, fmt.Errorf("read run from %s: %w", path, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, engine, name, elapsed_ns, items,
		failed, error, recorded_at FROM samples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query samples from %s: %w", path, err)
	}
	defer rows.Close()

	doc := Document{RunID: runID, Label: label}

	for rows.Next() {
		var (
			s          Sample
			elapsed    int64
			recordedAt string
		)

		if err := rows.Scan(&s.RunID, &s.Engine, &s.Name, &elapsed, &s.Items,
			&s.Failed, &s.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}

		s.Elapsed = time.Duration(elapsed)

		s.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}

		doc.Samples = append(doc.Samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	return fromDocument(doc)
}
