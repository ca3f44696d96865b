// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
)

// Severity of an annotation. Unknown values pass through untouched.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Annotation is a structured insight attached to a finalized reply.
//
// The service sends insights as {type, content, severity}; older
// payloads use {kind, text, severity}. Both decode into the same value.
type Annotation struct {
	Kind     string   `json:"kind"`
	Text     string   `json:"text"`
	Severity Severity `json:"severity,omitempty"`

	// Confidence is filled by presentation code only, never by the
	// exchange pipeline.
	Confidence float64 `json:"confidence,omitempty"`
}

// UnmarshalJSON accepts both the kind/text and type/content spellings.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind       string   `json:"kind"`
		Type       string   `json:"type"`
		Text       string   `json:"text"`
		Content    string   `json:"content"`
		Severity   Severity `json:"severity"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Kind = raw.Kind
	if a.Kind == "" {
		a.Kind = raw.Type
	}
	a.Text = raw.Text
	if a.Text == "" {
		a.Text = raw.Content
	}
	a.Severity = raw.Severity
	a.Confidence = raw.Confidence
	return nil
}

// IsEmpty reports whether the annotation carries no text.
func (a Annotation) IsEmpty() bool {
	return a.Text == ""
}
