// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a single HTML page with embedded CSS.
// Record bodies are rendered from Markdown; raw HTML in a body is dropped.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *model.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(t.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"grealth\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", t.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t))
	} else {
		sb.WriteString(fmt.Sprintf("        <header class=\"header\"><h1>%s</h1></header>\n", html.EscapeString(t.Title)))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i := range t.Records {
		body, err := e.renderRecord(&t.Records[i])
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString("            <p>General information only, not medical advice.</p>\n")
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(t *model.Transcript) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(t.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	if t.Language != "" {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Language:</strong> %s</span>\n", html.EscapeString(t.Language)))
	}
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(t.CreatedAt)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Records:</strong> %d</span>\n", len(t.Records)))
	if n := countInsights(t); n > 0 {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Insights:</strong> %d</span>\n", n))
	}
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderRecord(r *model.Record) (string, error) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("            <div class=\"record %s-record\">\n", html.EscapeString(string(r.Role))))
	sb.WriteString("                <div class=\"record-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", html.EscapeString(r.Role.DisplayName())))
	if e.options.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(r.CreatedAt)))
	}
	sb.WriteString("                </div>\n")

	if r.Attachment != nil {
		sb.WriteString(fmt.Sprintf("                <div class=\"attachment\">Attachment: %s</div>\n", html.EscapeString(r.Attachment.Name)))
	}

	if r.Body != "" {
		var buf bytes.Buffer
		if err := e.md.Convert([]byte(r.Body), &buf); err != nil {
			return "", fmt.Errorf("render record %s: %w", r.ID, err)
		}
		sb.WriteString("                <div class=\"record-body\">\n")
		sb.Write(buf.Bytes())
		sb.WriteString("                </div>\n")
	}

	if len(r.Annotations) > 0 {
		sb.WriteString("                <ul class=\"insights\">\n")
		for _, a := range r.Annotations {
			if a.IsEmpty() {
				continue
			}
			sev := string(a.Severity)
			if sev == "" {
				sev = "none"
			}
			sb.WriteString(fmt.Sprintf("                    <li class=\"insight severity-%s\"><strong>%s</strong>: %s</li>\n",
				html.EscapeString(sev), html.EscapeString(annotationLabel(a)), html.EscapeString(a.Text)))
		}
		sb.WriteString("                </ul>\n")
	}

	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, Inconsolata, "Fira Code", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --user-bg: #1f2335;
            --accent: #7aa2f7;
            --low: #9ece6a;
            --medium: #e0af68;
            --high: #f7768e;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --user-bg: #f1f8ff;
            --accent: #0366d6;
            --low: #22863a;
            --medium: #b08800;
            --high: #d73a49;
        }

        body {
            font-family: var(--font-sans);
            font-size: 16px;
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container { max-width: 860px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 28px 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 24px; margin-bottom: 8px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .conversation { padding: 24px 32px; }
        .record { padding: 16px; margin-bottom: 16px; border-radius: 8px; }
        .user-record { background: var(--user-bg); }
        .system-record { font-style: italic; color: var(--text-muted); }
        .record-header { display: flex; justify-content: space-between; margin-bottom: 8px; }
        .role-label { font-weight: 600; color: var(--accent); }
        .timestamp { font-size: 12px; color: var(--text-muted); }
        .attachment { font-size: 14px; color: var(--text-muted); margin-bottom: 8px; }
        .record-body p { margin-bottom: 8px; }
        .record-body pre { font-family: var(--font-mono); padding: 12px; overflow-x: auto; }
        .insights { list-style: none; margin-top: 8px; }
        .insight { padding: 6px 10px; margin-top: 4px; border-left: 4px solid var(--text-muted); }
        .severity-low { border-color: var(--low); }
        .severity-medium { border-color: var(--medium); }
        .severity-high { border-color: var(--high); }
        .footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); }
    </style>
`
