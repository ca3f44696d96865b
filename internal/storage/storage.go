// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists finalized transcripts.
type Store interface {
	// Save writes the transcript, replacing any previous version with the
	// same ID. Non-final records are never written.
	Save(t *model.Transcript) error

	// Load retrieves a transcript by ID.
	Load(id string) (*model.Transcript, error)

	// List returns metadata for all transcripts, most recent first.
	List() ([]TranscriptMeta, error)

	// Delete removes a transcript by ID.
	Delete(id string) error

	Close() error
}

// TranscriptMeta contains metadata for listing transcripts.
type TranscriptMeta struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	RecordCount int       `json:"record_count"`
	Preview     string    `json:"preview"`
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for the named backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(SQLitePath(dir))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// metaFor builds listing metadata from a transcript.
func metaFor(t *model.Transcript) TranscriptMeta {
	return TranscriptMeta{
		ID:          t.ID,
		Title:       t.Title,
		Language:    t.Language,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		RecordCount: len(t.Records),
		Preview:     t.Preview(),
	}
}

// prepare drops non-final records and stamps the save time.
func prepare(t *model.Transcript) {
	if t.ID == "" {
		fresh := model.NewTranscript(t.Language)
		t.ID = fresh.ID
	}
	t.SetRecords(t.Records)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	if t.Title == "" {
		t.Title = "New conversation"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrTranscriptNotFound is returned when a transcript doesn't exist.
// Use errors.Is(err, ErrTranscriptNotFound) to check for this error.
var ErrTranscriptNotFound = &TranscriptError{Message: "transcript not found"}

// TranscriptError represents a transcript-related error.
type TranscriptError struct {
	Message string
}

// Error implements the error interface.
func (e *TranscriptError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing transcript errors.
func (e *TranscriptError) Is(target error) bool {
	t, ok := target.(*TranscriptError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats transcript metadata as a table. Rows are numbered
// from 1 so they can be referenced by index.
func FormatList(metas []TranscriptMeta) string {
	if len(metas) == 0 {
		return "No saved conversations."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("#", 4) + " " + util.PadRight("Updated", 17) + " " +
		util.PadRight("Records", 8) + " Title\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")

	for i, m := range metas {
		sb.WriteString(util.PadRight(strconv.Itoa(i+1), 4) + " " +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(strconv.Itoa(m.RecordCount), 8) + " " +
			util.TruncateWidth(m.Title, 40) + "\n")
	}
	return sb.String()
}
