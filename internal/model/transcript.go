// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// MaxRecords is the maximum number of records kept in a transcript.
// When exceeded, the oldest records are pruned.
const MaxRecords = 1000

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is a persistable snapshot of a conversation. It only ever
// holds records whose status is final.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Records   []Record  `json:"records"`
}

// NewTranscript creates an empty transcript with a generated ID.
func NewTranscript(language string) *Transcript {
	now := time.Now()
	return &Transcript{
		ID:        "conv_" + uuid.NewString(),
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
		Records:   make([]Record, 0),
	}
}

// SetRecords replaces the transcript contents with the final records in
// recs, in order. Streaming or pending records are skipped.
func (t *Transcript) SetRecords(recs []Record) {
	kept := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.Status.IsFinal() {
			kept = append(kept, r.Clone())
		}
	}
	if len(kept) > MaxRecords {
		kept = kept[len(kept)-MaxRecords:]
	}
	t.Records = kept
	t.UpdatedAt = time.Now()
	t.updateTitle()
}

// updateTitle derives a title from the first user record.
func (t *Transcript) updateTitle() {
	if t.Title != "" {
		return
	}
	for _, r := range t.Records {
		if r.Role == RoleUser {
			if line := util.FirstLine(r.Body); line != "" {
				t.Title = util.TruncateRunes(line, 50)
				return
			}
		}
	}
}

// Preview returns a short single-line preview of the last assistant reply.
func (t *Transcript) Preview() string {
	for i := len(t.Records) - 1; i >= 0; i-- {
		if t.Records[i].Role == RoleAssistant {
			return util.TruncateRunes(util.FirstLine(t.Records[i].Body), 80)
		}
	}
	return ""
}

// IsEmpty reports whether the transcript has no records.
func (t *Transcript) IsEmpty() bool {
	return len(t.Records) == 0
}
