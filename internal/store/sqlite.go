// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// DB persists run state so a later invocation can resume triage or
// full-text resolution without re-running the search. The column set and
// the stage column are stable across runs.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the run-state SQLite database at path, creating
// parent directories and the schema as needed.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	d := &DB{db: db}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return d, nil
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			fingerprint TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			authors TEXT,
			abstract TEXT,
			date TEXT,
			doi TEXT,
			download_url TEXT,
			sources TEXT,
			stage TEXT NOT NULL,
			excluded_from TEXT,
			decision_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_stage ON records(stage)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Reset deletes every persisted record.
func (d *DB) Reset(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}

// Save upserts every record of s in one transaction.
func (d *DB) Save(ctx context.Context, s *Store) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (fingerprint, position, title, authors, abstract, date,
			doi, download_url, sources, stage, excluded_from, decision_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			title=excluded.title, authors=excluded.authors,
			abstract=excluded.abstract, date=excluded.date, doi=excluded.doi,
			download_url=excluded.download_url, sources=excluded.sources,
			stage=excluded.stage, excluded_from=excluded.excluded_from,
			decision_reason=excluded.decision_reason`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range s.All() {
		authorsJSON, _ := json.Marshal(rec.Authors)
		sourcesJSON, _ := json.Marshal(rec.Sources)
		dateStr := ""
		if !rec.Date.IsZero() {
			dateStr = rec.Date.Format(time.RFC3339)
		}
		_, err := stmt.ExecContext(ctx,
			rec.Fingerprint, i, rec.Title, string(authorsJSON), rec.Abstract,
			dateStr, rec.DOI, rec.DownloadURL, string(sourcesJSON),
			string(rec.Stage), string(rec.ExcludedFrom), rec.DecisionReason,
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.Fingerprint, err)
		}
	}
	return tx.Commit()
}

// Load reads all persisted records into a fresh Store, preserving the
// original insertion order.
func (d *DB) Load(ctx context.Context) (*Store, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT fingerprint, title, authors, abstract, date, doi, download_url,
			sources, stage, excluded_from, decision_reason
		 FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	s := New()
	for rows.Next() {
		var rec types.Record
		var authorsJSON, sourcesJSON, dateStr, excludedFrom, stage string
		if err := rows.Scan(&rec.Fingerprint, &rec.Title, &authorsJSON,
			&rec.Abstract, &dateStr, &rec.DOI, &rec.DownloadURL,
			&sourcesJSON, &stage, &excludedFrom, &rec.DecisionReason); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(authorsJSON), &rec.Authors); err != nil {
			return nil, fmt.Errorf("parsing authors for %s: %w", rec.Fingerprint, err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &rec.Sources); err != nil {
			return nil, fmt.Errorf("parsing sources for %s: %w", rec.Fingerprint, err)
		}
		if dateStr != "" {
			if t, parseErr := time.Parse(time.RFC3339, dateStr); parseErr == nil {
				rec.Date = t
			}
		}
		rec.Stage = types.Stage(stage)
		rec.ExcludedFrom = types.Stage(excludedFrom)
		s.restore(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return s, nil
}
