// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations as Markdown, HTML or JSON.
//
// Insights attached to replies are included in every format, with their
// severity.
//
// # Key Types
//
//   - Exporter: Converts a transcript to one format
//   - Options: Metadata, timestamps and HTML theme
//
// # Supported Formats
//
//   - Markdown: YAML front matter plus one section per record
//   - HTML: Self-contained page with embedded CSS
//   - JSON: The transcript as stored
//
// # Usage
//
//	exp, err := export.ForFormat("html", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(transcript, exp, "visit.html")
package export
