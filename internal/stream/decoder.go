// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"sync/atomic"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// Fields the decoder interprets. Everything else on a done line is kept
// in DoneEvent.Extra.
var knownFields = map[string]bool{
	"chunk":            true,
	"done":             true,
	"error":            true,
	"insights":         true,
	"file_processed":   true,
	"is_first_message": true,
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns stream lines into events.
//
// Precedence on a single line: a non-empty "error" field wins, then "done": true,
// then a non-empty "chunk" string. Lines matching none of these are
// ignored. Lines that are not JSON objects are malformed: they are
// logged, counted and dropped.
type Decoder struct {
	logger    *log.Logger
	malformed atomic.Int64
}

// NewDecoder creates a decoder that logs malformed lines to logger.
// A nil logger selects log.Default().
func NewDecoder(logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Decoder{logger: logger}
}

// Malformed returns the number of malformed lines dropped so far.
func (d *Decoder) Malformed() int64 {
	return d.malformed.Load()
}

// Decode parses one line. The boolean is false when the line produced no
// event (blank, ignored or malformed).
func (d *Decoder) Decode(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		d.dropMalformed(trimmed, "not a JSON object")
		return nil, false
	}

	if raw, ok := fields["error"]; ok && !emptyError(raw) {
		return ErrorEvent{Message: errorMessage(raw)}, true
	}

	if raw, ok := fields["done"]; ok {
		var done bool
		if err := json.Unmarshal(raw, &done); err != nil {
			d.dropMalformed(trimmed, "done is not a boolean")
			return nil, false
		}
		if done {
			return d.decodeDone(fields), true
		}
	}

	raw, ok := fields["chunk"]
	if !ok || isNull(raw) {
		return nil, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		d.dropMalformed(trimmed, "chunk is not a string")
		return nil, false
	}
	if text == "" {
		return nil, false
	}
	return ChunkEvent{Text: text}, true
}

// decodeDone builds the terminal event. A damaged insights field does not
// fail the exchange; the reply is still delivered without annotations.
func (d *Decoder) decodeDone(fields map[string]json.RawMessage) DoneEvent {
	ev := DoneEvent{}

	if raw, ok := fields["chunk"]; ok {
		_ = json.Unmarshal(raw, &ev.Text)
	}
	if raw, ok := fields["insights"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &ev.Insights); err != nil {
			d.logger.Printf("STREAM_BAD_INSIGHTS | error=%v", err)
			ev.Insights = nil
		}
	}
	if raw, ok := fields["file_processed"]; ok && !isNull(raw) {
		var processed bool
		if err := json.Unmarshal(raw, &processed); err == nil {
			ev.FileProcessed = &processed
		}
	}
	if raw, ok := fields["is_first_message"]; ok {
		_ = json.Unmarshal(raw, &ev.IsFirstMessage)
	}

	for k, v := range fields {
		if knownFields[k] {
			continue
		}
		if ev.Extra == nil {
			ev.Extra = make(map[string]json.RawMessage)
		}
		ev.Extra[k] = v
	}

	// Drop empty insight entries so renderers never show blank rows
	kept := ev.Insights[:0]
	for _, a := range ev.Insights {
		if !a.IsEmpty() {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		ev.Insights = nil
	} else {
		ev.Insights = kept
	}
	return ev
}

func (d *Decoder) dropMalformed(line, reason string) {
	n := d.malformed.Add(1)
	d.logger.Printf("STREAM_MALFORMED_LINE | reason=%q count=%d line=%q",
		reason, n, util.TruncateRunes(line, 120))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// emptyError reports whether an error field carries no error: null, an
// empty string or false.
func emptyError(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "null", `""`, "false":
		return true
	}
	return false
}

// errorMessage renders the error field. The service sends a string; an
// object or other value is shown as raw JSON rather than lost.
func errorMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(bytes.TrimSpace(raw))
}

// annotationsOrNil normalizes an empty slice to nil.
func annotationsOrNil(a []model.Annotation) []model.Annotation {
	if len(a) == 0 {
		return nil
	}
	return a
}
