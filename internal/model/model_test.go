// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// RECORD TESTS
// =============================================================================

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "rec_") {
			t.Fatalf("NewID() = %q, want rec_ prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRecordConstructors(t *testing.T) {
	tests := []struct {
		name   string
		rec    Record
		role   Role
		status Status
	}{
		{"user", NewUserRecord("What is fever?", nil), RoleUser, StatusPending},
		{"placeholder", NewPlaceholder(), RoleAssistant, StatusStreaming},
		{"system", NewSystemRecord("notice"), RoleSystem, StatusComplete},
		{"error", NewErrorRecord("Error: boom"), RoleSystem, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.rec.Role != tt.role {
				t.Errorf("Role = %q, want %q", tt.rec.Role, tt.role)
			}
			if tt.rec.Status != tt.status {
				t.Errorf("Status = %q, want %q", tt.rec.Status, tt.status)
			}
			if tt.rec.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestRecord_FinalizeAssignsNewID(t *testing.T) {
	p := NewPlaceholder()
	anns := []Annotation{{Kind: "symptom", Text: "elevated temperature", Severity: SeverityMedium}}

	final := p.Finalize("Fever is a rise in body temperature.", anns)

	assert.NotEqual(t, p.ID, final.ID)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, p.CreatedAt, final.CreatedAt)
	assert.Equal(t, "Fever is a rise in body temperature.", final.Body)
	require.Len(t, final.Annotations, 1)

	anns[0].Text = "mutated"
	assert.Equal(t, "elevated temperature", final.Annotations[0].Text, "annotations must be copied")
}

func TestRecord_CloneIsDeep(t *testing.T) {
	rec := NewUserRecord("Uploaded report.txt", &Attachment{Name: "report.txt"})
	rec.Annotations = []Annotation{{Kind: "a", Text: "b"}}

	clone := rec.Clone()
	clone.Attachment.Name = "other.txt"
	clone.Annotations[0].Text = "changed"

	assert.Equal(t, "report.txt", rec.Attachment.Name)
	assert.Equal(t, "b", rec.Annotations[0].Text)
}

func TestStatus_IsFinal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusStreaming, false},
		{StatusComplete, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsFinal(); got != tt.want {
			t.Errorf("%s.IsFinal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// =============================================================================
// ANNOTATION TESTS
// =============================================================================

func TestAnnotation_UnmarshalBothForms(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Annotation
	}{
		{
			name: "service form",
			json: `{"type":"symptom_analysis","content":"Fever detected","severity":"medium"}`,
			want: Annotation{Kind: "symptom_analysis", Text: "Fever detected", Severity: SeverityMedium},
		},
		{
			name: "documented form",
			json: `{"kind":"recommendation","text":"Stay hydrated","severity":"low"}`,
			want: Annotation{Kind: "recommendation", Text: "Stay hydrated", Severity: SeverityLow},
		},
		{
			name: "unknown severity passes through",
			json: `{"kind":"risk","text":"x","severity":"critical"}`,
			want: Annotation{Kind: "risk", Text: "x", Severity: "critical"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Annotation
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_SetRecordsSkipsInFlight(t *testing.T) {
	tr := NewTranscript("English")

	user := NewUserRecord("What is fever?\nI feel warm.", nil)
	user.Status = StatusComplete
	reply := NewPlaceholder().Finalize("Fever is a temporary increase in body temperature.", nil)
	streaming := NewPlaceholder()

	tr.SetRecords([]Record{user, reply, streaming})

	require.Len(t, tr.Records, 2)
	assert.Equal(t, "What is fever?", tr.Title)
	assert.Equal(t, "Fever is a temporary increase in body temperature.", tr.Preview())
	assert.False(t, tr.IsEmpty())
}
