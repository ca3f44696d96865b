// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/store"
	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

func plain(buf *bytes.Buffer) *Renderer {
	return New(buf, Options{Width: 60})
}

// =============================================================================
// RENDERER TESTS
// =============================================================================

func TestRecord(t *testing.T) {
	r := plain(&bytes.Buffer{})

	tests := []struct {
		name string
		rec  model.Record
		want string
	}{
		{
			name: "user text",
			rec:  model.NewUserRecord("hello", nil),
			want: "You: hello",
		},
		{
			name: "user with attachment",
			rec:  model.NewUserRecord("check this", &model.Attachment{Name: "lab.pdf", Size: 2048}),
			want: "You: [file: lab.pdf, 2.0 KB] check this",
		},
		{
			name: "streaming placeholder",
			rec:  model.NewPlaceholder(),
			want: "Assistant: ...",
		},
		{
			name: "system error",
			rec:  model.NewErrorRecord("Error: service unreachable"),
			want: "System: Error: service unreachable",
		},
		{
			name: "multi-line body",
			rec:  model.NewUserRecord("line one\nline two", nil),
			want: "You:\nline one\nline two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Record(tt.rec)
			if got != tt.want {
				t.Errorf("Record() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	r := plain(&bytes.Buffer{})

	got := r.Annotations([]model.Annotation{
		{Kind: "warning", Text: "See a doctor", Severity: model.SeverityHigh},
		{Text: ""},
		{Kind: "tip", Text: "Drink water"},
	})

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  * warning: See a doctor [high]", lines[0])
	assert.Equal(t, "  * tip: Drink water", lines[1])
}

func TestRecordWithAnnotations(t *testing.T) {
	r := plain(&bytes.Buffer{})
	rec := model.NewPlaceholder().Finalize("Rest well.", []model.Annotation{
		{Kind: "advice", Text: "Sleep 8 hours", Severity: model.SeverityLow},
	})

	got := r.Record(rec)
	assert.True(t, strings.HasPrefix(got, "Assistant: Rest well."), got)
	assert.Contains(t, got, "\n  * advice: Sleep 8 hours [low]")
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{Width: 40, Markdown: true})

	got := r.Markdown("**Fever** is a symptom.")
	assert.Contains(t, got, "Fever")
	assert.Contains(t, got, "is a symptom.")

	assert.Equal(t, "", r.Markdown(""))
}

func TestMarkdownDisabled(t *testing.T) {
	r := plain(&bytes.Buffer{})
	assert.Equal(t, "**bold**", r.Markdown("**bold**"))
}

func TestColorOutput(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{Color: true})
	got := r.Label(model.NewErrorRecord("x"))
	assert.Contains(t, got, "\x1b[", "color renderer should emit escape codes")

	r = plain(&buf)
	got = r.Label(model.NewErrorRecord("x"))
	assert.Equal(t, "System:", got)
}

func TestPreview(t *testing.T) {
	r := plain(&bytes.Buffer{})

	tests := []struct {
		name  string
		rec   model.Record
		width int
		want  string
	}{
		{"short", model.NewUserRecord("hi", nil), 20, "You: hi"},
		{"first line only", model.NewUserRecord("one\ntwo", nil), 20, "You: one"},
		{"attachment only", model.NewUserRecord("", &model.Attachment{Name: "x.txt"}), 40, "You: [file: x.txt]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Preview(tt.rec, tt.width); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}

	long := r.Preview(model.NewUserRecord(strings.Repeat("a", 100), nil), 20)
	assert.LessOrEqual(t, util.StringWidth(long), 20)
}

func TestTranscript(t *testing.T) {
	r := plain(&bytes.Buffer{})
	tr := &model.Transcript{
		ID:        "t1",
		Title:     "Headache",
		Language:  "English",
		UpdatedAt: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Records: []model.Record{
			model.NewUserRecord("I have a headache", nil),
			model.NewPlaceholder().Finalize("Drink water.", nil),
		},
	}

	got := r.Transcript(tr)
	assert.Contains(t, got, "Headache\n2025-03-01 10:30 | English\n")
	assert.Contains(t, got, "You: I have a headache")
	assert.Contains(t, got, "Assistant: Drink water.")
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

// =============================================================================
// PRINTER TESTS
// =============================================================================

func TestPrinterStreamsReply(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))
	s := store.New()
	defer s.Close()
	stop := p.Attach(s)
	defer stop()

	require.NoError(t, s.Insert(model.NewUserRecord("hello", nil)))
	ph := model.NewPlaceholder()
	require.NoError(t, s.Insert(ph))
	s.UpdateBody(ph.ID, "Hel")
	s.UpdateBody(ph.ID, "Hello the")
	s.Replace(ph.ID, ph.Finalize("Hello there.", []model.Annotation{{Kind: "tip", Text: "Rest"}}))

	assert.Equal(t, "Assistant: Hello there.\n  * tip: Rest\n", buf.String())
}

func TestPrinterEchoUser(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))
	p.EchoUser = true

	p.Handle(store.Change{Op: store.OpInsert, Record: model.NewUserRecord("hi", nil)})
	assert.Equal(t, "You: hi\n", buf.String())
}

func TestPrinterRemovedPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))
	s := store.New()
	defer s.Close()
	p.Attach(s)

	ph := model.NewPlaceholder()
	require.NoError(t, s.Insert(ph))
	s.UpdateBody(ph.ID, "partial")
	s.Remove(ph.ID)
	require.NoError(t, s.Insert(model.NewErrorRecord("Error: cancelled")))

	assert.Equal(t, "Assistant: partial\nSystem: Error: cancelled\n", buf.String())
}

func TestPrinterConcurrentReplies(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))
	s := store.New()
	defer s.Close()
	p.Attach(s)

	first := model.NewPlaceholder()
	second := model.NewPlaceholder()
	require.NoError(t, s.Insert(first))
	require.NoError(t, s.Insert(second))

	s.UpdateBody(first.ID, "A")
	s.UpdateBody(second.ID, "B")
	s.Replace(second.ID, second.Finalize("B done", nil))
	s.Replace(first.ID, first.Finalize("A done", nil))

	assert.Equal(t, "Assistant: A\nAssistant: B done\nAssistant: A done\n", buf.String())
}

func TestPrinterSystemNotice(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))

	p.Handle(store.Change{Op: store.OpInsert, Record: model.NewSystemRecord("Please log in first.")})
	assert.Equal(t, "System: Please log in first.\n", buf.String())
}

func TestPrinterNoticeMidStream(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, plain(&buf))
	s := store.New()
	defer s.Close()
	p.Attach(s)

	ph := model.NewPlaceholder()
	require.NoError(t, s.Insert(ph))
	s.UpdateBody(ph.ID, "Fever ")
	p.Notice("[Upload] labs.txt sent")
	s.UpdateBody(ph.ID, "Fever is")
	s.Replace(ph.ID, ph.Finalize("Fever is high.", nil))

	assert.Equal(t, "Assistant: Fever \n[Upload] labs.txt sent\nAssistant: Fever is high.\n", buf.String())
}
