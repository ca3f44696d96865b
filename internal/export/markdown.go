// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontMatter is the YAML header of a Markdown export.
type frontMatter struct {
	Title    string `yaml:"title"`
	ID       string `yaml:"id"`
	Language string `yaml:"language,omitempty"`
	Created  string `yaml:"created"`
	Updated  string `yaml:"updated"`
	Records  int    `yaml:"records"`
	Insights int    `yaml:"insights,omitempty"`
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *model.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontMatter{
			Title:    t.Title,
			ID:       t.ID,
			Language: t.Language,
			Created:  t.CreatedAt.Format(time.RFC3339),
			Updated:  t.UpdatedAt.Format(time.RFC3339),
			Records:  len(t.Records),
			Insights: countInsights(t),
		})
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# " + escapeMarkdown(t.Title) + "\n\n")
	if t.Language != "" {
		sb.WriteString("Language: " + t.Language + "\n\n")
	}
	sb.WriteString("---\n\n")

	for _, r := range t.Records {
		label := "**" + r.Role.DisplayName() + "**"
		if e.options.IncludeTimestamps {
			label += " <sub>" + formatShortTimestamp(r.CreatedAt) + "</sub>"
		}
		sb.WriteString(label + "\n\n")

		if r.Attachment != nil {
			sb.WriteString("_Attachment: " + escapeMarkdown(r.Attachment.Name) + "_\n\n")
		}
		if r.Body != "" {
			sb.WriteString(r.Body)
			sb.WriteString("\n\n")
		}
		for _, a := range r.Annotations {
			if a.IsEmpty() {
				continue
			}
			sb.WriteString("> **" + annotationLabel(a) + "**: " + a.Text + "\n")
		}
		if len(r.Annotations) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("---\n\n")
	}

	sb.WriteString("*General information only, not medical advice.*\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes characters that would break headings and emphasis.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]")
	return r.Replace(s)
}

func countInsights(t *model.Transcript) int {
	n := 0
	for _, r := range t.Records {
		n += len(r.Annotations)
	}
	return n
}
