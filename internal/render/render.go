// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// DefaultWidth is used when no width is configured.
const DefaultWidth = 80

// Options configures a Renderer.
type Options struct {
	// Width wraps markdown output (default: 80)
	Width int

	// Color enables ANSI styling
	Color bool

	// Markdown renders finalized assistant replies with glamour
	Markdown bool
}

// =============================================================================
// STYLES
// =============================================================================

// Styles holds the lipgloss styles used for records.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Dim       lipgloss.Style
	Insight   lipgloss.Style

	SeverityHigh   lipgloss.Style
	SeverityMedium lipgloss.Style
	SeverityLow    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		User:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),  // Cyan
		Assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),  // Green
		System:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("245")), // Light gray
		Error:     r.NewStyle().Foreground(lipgloss.Color("196")),            // Red
		Warning:   r.NewStyle().Foreground(lipgloss.Color("214")),            // Orange
		Dim:       r.NewStyle().Foreground(lipgloss.Color("242")),
		Insight:   r.NewStyle().Bold(true),

		SeverityHigh:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		SeverityMedium: r.NewStyle().Foreground(lipgloss.Color("214")),
		SeverityLow:    r.NewStyle().Foreground(lipgloss.Color("75")),
	}
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer formats records for a terminal.
type Renderer struct {
	styles Styles
	md     *glamour.TermRenderer
	width  int
}

// New creates a renderer for output written to w.
func New(w io.Writer, opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}

	profile := termenv.Ascii
	if opts.Color {
		profile = termenv.NewOutput(w).EnvColorProfile()
		if profile == termenv.Ascii {
			profile = termenv.ANSI256
		}
	}
	lg := lipgloss.NewRenderer(w)
	lg.SetColorProfile(profile)

	r := &Renderer{
		styles: newStyles(lg),
		width:  opts.Width,
	}

	if opts.Markdown {
		style := glamour.WithStandardStyle("notty")
		if opts.Color {
			style = glamour.WithStandardStyle("dark")
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Styles returns the styles in use.
func (r *Renderer) Styles() Styles {
	return r.styles
}

// Label returns the styled role label, e.g. "Assistant:".
func (r *Renderer) Label(rec model.Record) string {
	text := rec.Role.DisplayName() + ":"
	switch {
	case rec.Role == model.RoleUser:
		return r.styles.User.Render(text)
	case rec.Role == model.RoleAssistant:
		return r.styles.Assistant.Render(text)
	case rec.Status == model.StatusFailed:
		return r.styles.Error.Render(text)
	default:
		return r.styles.System.Render(text)
	}
}

// Record renders a whole record: label, attachment, body and insights.
func (r *Renderer) Record(rec model.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Label(rec))

	if rec.Attachment != nil {
		sb.WriteString(" " + r.styles.Dim.Render(attachmentLine(rec.Attachment)))
	}

	body := r.body(rec)
	if strings.Contains(body, "\n") {
		sb.WriteString("\n" + body)
	} else if body != "" {
		sb.WriteString(" " + body)
	}
	if rec.IsStreaming() {
		sb.WriteString(r.styles.Dim.Render(" ..."))
	}

	if len(rec.Annotations) > 0 {
		sb.WriteString("\n" + r.Annotations(rec.Annotations))
	}
	return sb.String()
}

func (r *Renderer) body(rec model.Record) string {
	switch {
	case rec.Role == model.RoleSystem && rec.Status == model.StatusFailed:
		return r.styles.Error.Render(rec.Body)
	case rec.Role == model.RoleSystem:
		return r.styles.Warning.Render(rec.Body)
	case rec.Role == model.RoleAssistant && rec.Status == model.StatusComplete:
		return r.Markdown(rec.Body)
	default:
		return rec.Body
	}
}

// Markdown renders body with glamour when markdown is enabled.
func (r *Renderer) Markdown(body string) string {
	if r.md == nil || strings.TrimSpace(body) == "" {
		return body
	}
	out, err := r.md.Render(body)
	if err != nil {
		return body
	}
	return strings.Trim(out, "\n")
}

// Annotations renders insights as one bullet per line.
func (r *Renderer) Annotations(anns []model.Annotation) string {
	lines := make([]string, 0, len(anns))
	for _, a := range anns {
		if a.IsEmpty() {
			continue
		}
		line := "  * "
		if a.Kind != "" {
			line += r.styles.Insight.Render(a.Kind) + ": "
		}
		line += a.Text
		if a.Severity != "" {
			line += " " + r.severity(a.Severity)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) severity(s model.Severity) string {
	text := "[" + string(s) + "]"
	switch s {
	case model.SeverityHigh:
		return r.styles.SeverityHigh.Render(text)
	case model.SeverityMedium:
		return r.styles.SeverityMedium.Render(text)
	case model.SeverityLow:
		return r.styles.SeverityLow.Render(text)
	default:
		return r.styles.Dim.Render(text)
	}
}

// Preview renders a single-line summary that fits in width columns.
func (r *Renderer) Preview(rec model.Record, width int) string {
	label := rec.Role.DisplayName() + ": "
	line := util.FirstLine(rec.Body)
	if line == "" && rec.Attachment != nil {
		line = attachmentLine(rec.Attachment)
	}
	return util.TruncateWidth(label+line, width)
}

// Transcript renders every record of a saved conversation.
func (r *Renderer) Transcript(t *model.Transcript) string {
	var sb strings.Builder
	sb.WriteString(r.styles.Insight.Render(t.Title) + "\n")
	meta := t.UpdatedAt.Format("2006-01-02 15:04")
	if t.Language != "" {
		meta += " | " + t.Language
	}
	sb.WriteString(r.styles.Dim.Render(meta) + "\n")
	for _, rec := range t.Records {
		sb.WriteString("\n" + r.Record(rec) + "\n")
	}
	return sb.String()
}

func attachmentLine(a *model.Attachment) string {
	if a.Size > 0 {
		return fmt.Sprintf("[file: %s, %s]", a.Name, humanSize(a.Size))
	}
	return "[file: " + a.Name + "]"
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
