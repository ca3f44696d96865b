// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for CLI commands.
//
// Styles are bound to the writer they render for, so a command printing
// to a pipe gets plain text even when another stream is a terminal.

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// cliStyles holds the styles used outside of conversation records.
type cliStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
	Info    lipgloss.Style
	Prompt  lipgloss.Style
	Sep     lipgloss.Style
}

// newStyles creates styles for output written to w.
func newStyles(w io.Writer, color bool) cliStyles {
	r := lipgloss.NewRenderer(w)
	if color {
		profile := termenv.NewOutput(w).EnvColorProfile()
		if profile == termenv.Ascii {
			profile = termenv.ANSI256
		}
		r.SetColorProfile(profile)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return cliStyles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")), // Cyan
		Label:   r.NewStyle().Foreground(lipgloss.Color("245")).Width(20),
		Value:   r.NewStyle().Foreground(lipgloss.Color("252")),
		Success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),  // Green
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")), // Red
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("242")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("75")), // Blue
		Prompt:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Sep:     r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// Separator renders a horizontal rule of the given width (default 60).
func (s cliStyles) Separator(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Sep.Render(strings.Repeat("─", width))
}

// Field renders a "label value" row with an aligned label.
func (s cliStyles) Field(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}

// Status renders a bracketed status indicator.
func (s cliStyles) Status(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success":
		return s.Success.Render("[OK]")
	case "error", "fail", "failed":
		return s.Error.Render("[FAIL]")
	case "warning", "warn":
		return s.Warning.Render("[WARN]")
	default:
		return s.Dim.Render("[" + strings.ToUpper(status) + "]")
	}
}
