// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render formats conversation records for the terminal.
//
// Styling uses lipgloss with a color profile bound to the output writer,
// so piping to a file yields plain text. Finalized assistant replies can
// be rendered as markdown with glamour.
//
// # Key Types
//
//   - Renderer: Formats labels, bodies, insights and previews
//   - Printer: Streams store changes to a writer as replies arrive
//
// # Usage
//
//	r := render.New(os.Stdout, render.Options{Color: true, Markdown: true})
//	p := render.NewPrinter(os.Stdout, r)
//	stop := p.Attach(svc.Records())
//	defer stop()
package render
