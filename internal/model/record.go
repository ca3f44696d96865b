// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsFinal reports whether the record body can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusFailed
}

// =============================================================================
// RECORD TYPE
// =============================================================================

// Attachment references an uploaded file. Immutable once created.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	// URL is a local handle (file path or object URL) usable for preview.
	URL string `json:"url,omitempty"`
}

// Record is a single entry in a conversation.
type Record struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`

	Attachment  *Attachment  `json:"attachment,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// NewID returns a fresh record id.
func NewID() string {
	return "rec_" + uuid.NewString()
}

// NewRecord creates a complete record with a generated ID.
func NewRecord(role Role, body string) Record {
	return Record{
		ID:        NewID(),
		Role:      role,
		Body:      body,
		CreatedAt: time.Now(),
		Status:    StatusComplete,
	}
}

// NewUserRecord creates a pending user record. It is marked complete or
// failed once its exchange ends.
func NewUserRecord(body string, attachment *Attachment) Record {
	rec := NewRecord(RoleUser, body)
	rec.Status = StatusPending
	if attachment != nil {
		a := *attachment
		rec.Attachment = &a
	}
	return rec
}

// NewPlaceholder creates an empty streaming assistant record.
func NewPlaceholder() Record {
	rec := NewRecord(RoleAssistant, "")
	rec.Status = StatusStreaming
	return rec
}

// NewSystemRecord creates a complete system notice.
func NewSystemRecord(body string) Record {
	return NewRecord(RoleSystem, body)
}

// NewErrorRecord creates a failed system record carrying a readable cause.
func NewErrorRecord(body string) Record {
	rec := NewRecord(RoleSystem, body)
	rec.Status = StatusFailed
	return rec
}

// Finalize returns the terminal form of a streaming record. The result
// has a new id, the frozen body and the annotations; CreatedAt is kept.
func (r Record) Finalize(body string, annotations []Annotation) Record {
	return Record{
		ID:          NewID(),
		Role:        r.Role,
		Body:        body,
		CreatedAt:   r.CreatedAt,
		Status:      StatusComplete,
		Attachment:  r.Attachment,
		Annotations: slices.Clone(annotations),
	}
}

// Clone returns a deep copy so callers never share mutable state with
// the store.
func (r Record) Clone() Record {
	out := r
	if r.Attachment != nil {
		a := *r.Attachment
		out.Attachment = &a
	}
	out.Annotations = slices.Clone(r.Annotations)
	return out
}

// IsStreaming reports whether the record is an in-progress reply.
func (r Record) IsStreaming() bool {
	return r.Status == StatusStreaming
}
