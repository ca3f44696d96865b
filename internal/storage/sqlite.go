// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS transcripts (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL DEFAULT '',
    language     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    preview      TEXT NOT NULL DEFAULT '',
    records      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_transcripts_updated_at ON transcripts(updated_at);
`

// timeLayout has fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLitePath returns the database file used inside a storage directory.
func SQLitePath(dir string) string {
	return filepath.Join(dir, "transcripts.db")
}

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists transcripts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. Use ":memory:" for a throwaway store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// ":memory:" databases exist per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces a transcript.
func (s *SQLiteStore) Save(t *model.Transcript) error {
	prepare(t)

	records, err := json.Marshal(t.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	meta := metaFor(t)

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO transcripts
			(id, title, language, created_at, updated_at, record_count, preview, records)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Title,
		t.Language,
		t.CreatedAt.UTC().Format(timeLayout),
		t.UpdatedAt.UTC().Format(timeLayout),
		meta.RecordCount,
		meta.Preview,
		string(records),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Load retrieves a transcript by ID.
func (s *SQLiteStore) Load(id string) (*model.Transcript, error) {
	row := s.db.QueryRow(`
		SELECT id, title, language, created_at, updated_at, records
		FROM transcripts WHERE id = ?`, id)

	var t model.Transcript
	var createdAt, updatedAt, records string
	err := row.Scan(&t.ID, &t.Title, &t.Language, &createdAt, &updatedAt, &records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	if err := json.Unmarshal([]byte(records), &t.Records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return &t, nil
}

// List returns metadata for all transcripts, most recent first.
func (s *SQLiteStore) List() ([]TranscriptMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, language, created_at, updated_at, record_count, preview
		FROM transcripts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	metas := []TranscriptMeta{}
	for rows.Next() {
		var m TranscriptMeta
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.Title, &m.Language, &createdAt, &updatedAt, &m.RecordCount, &m.Preview); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		m.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete removes a transcript by ID.
func (s *SQLiteStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM transcripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrTranscriptNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
