// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

func sampleTranscript() *model.Transcript {
	tr := model.NewTranscript("Hindi")
	tr.CreatedAt = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	user := model.NewUserRecord("What is fever?", &model.Attachment{Name: "temp_log.txt"})
	user.Status = model.StatusComplete
	reply := model.NewPlaceholder().Finalize("Fever is a **raised** body temperature.\n\n<script>alert(1)</script>", []model.Annotation{
		{Kind: "warning", Text: "See a doctor above 39C", Severity: model.SeverityHigh},
		{Kind: "tip", Text: "Drink <fluids>"},
	})
	tr.SetRecords([]model.Record{user, reply})
	return tr
}

func TestMarkdownExporter(t *testing.T) {
	tr := sampleTranscript()

	out, err := NewMarkdownExporter(nil).Export(tr)
	require.NoError(t, err)
	md := string(out)

	require.True(t, strings.HasPrefix(md, "---\n"))
	parts := strings.SplitN(md, "---\n", 3)
	require.Len(t, parts, 3)

	var fm frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "What is fever?", fm.Title)
	assert.Equal(t, "Hindi", fm.Language)
	assert.Equal(t, 2, fm.Records)
	assert.Equal(t, 2, fm.Insights)

	assert.Contains(t, md, "# What is fever?\n")
	assert.Contains(t, md, "_Attachment: temp\\_log.txt_")
	assert.Contains(t, md, "**Assistant**")
	assert.Contains(t, md, "> **warning (high)**: See a doctor above 39C")
	assert.Contains(t, md, "> **tip**: Drink <fluids>")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	out, err := NewMarkdownExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "# What is fever?\n"))
	assert.NotContains(t, string(out), "<sub>")
}

func TestHTMLExporter(t *testing.T) {
	out, err := NewHTMLExporter(&Options{IncludeMetadata: true, Theme: "dark"}).Export(sampleTranscript())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>What is fever?</title>")
	assert.Contains(t, page, `<body class="dark-theme">`)
	assert.Contains(t, page, "<strong>raised</strong>")
	assert.NotContains(t, page, "<script>", "raw HTML in a reply is dropped")
	assert.Contains(t, page, `class="insight severity-high"`)
	assert.Contains(t, page, "Drink &lt;fluids&gt;")
	assert.Contains(t, page, "Attachment: temp_log.txt")
}

func TestJSONExporter_RoundTrip(t *testing.T) {
	tr := sampleTranscript()
	out, err := NewJSONExporter(nil).Export(tr)
	require.NoError(t, err)

	var back model.Transcript
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, tr.ID, back.ID)
	require.Len(t, back.Records, 2)
	assert.Len(t, back.Records[1].Annotations, 2)
}

func TestExport_Empty(t *testing.T) {
	for _, format := range []string{FormatMarkdown, FormatHTML, FormatJSON} {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exp.Export(model.NewTranscript("English"))
		assert.ErrorIs(t, err, ErrEmptyTranscript, format)
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"", ".md"},
		{"md", ".md"},
		{"Markdown", ".md"},
		{"html", ".html"},
		{"json", ".json"},
	}
	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		require.NoError(t, err)
		if exp.FileExtension() != tt.ext {
			t.Errorf("ForFormat(%q) extension = %s, want %s", tt.format, exp.FileExtension(), tt.ext)
		}
	}

	_, err := ForFormat("pdf", nil)
	assert.Error(t, err)

	assert.Equal(t, FormatHTML, FormatForPath("visit.HTML"))
	assert.Equal(t, FormatJSON, FormatForPath("/tmp/a.json"))
	assert.Equal(t, FormatMarkdown, FormatForPath("notes.txt"))
}

func TestToFile(t *testing.T) {
	tr := sampleTranscript()
	dir := t.TempDir()

	path, err := ToFile(tr, NewMarkdownExporter(nil), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "what_is_fever-_20250301_0930.md"), path)

	explicit := filepath.Join(dir, "visit.html")
	path, err = ToFile(tr, NewHTMLExporter(nil), explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fever after travel", "fever_after_travel"},
		{`a/b\c:d`, "a-b-c-d"},
		{"", "conversation"},
		{"   ", "conversation"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
