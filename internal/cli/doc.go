// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the grealth command line (spf13/cobra).
//
// # Commands
//
//   - chat: Interactive conversation (default with no subcommand)
//   - ask: Single question, message from args or stdin
//   - upload: Send a file for analysis
//   - history: list, show, export (Markdown, HTML, JSON) and delete saved conversations
//   - login / logout: Store or drop the identity provider's token
//   - config: show, path, init, get, set, keys, languages
//   - relay: Development server backed by a local Ollama model
//   - version: Build information
//
// Global flags: --config, --verbose, --no-color, --json, --language,
// --base-url.
//
// # Key Types
//
//   - ChatCLI: liner-backed input with persistent history
//   - JSONResponse: Envelope for --json output
//   - CommandError, ValidationError, NotFoundError: Errors mapped to exit codes
//
// # Usage
//
//	func main() {
//	    cli.Execute(version, commit, date)
//	}
package cli
