// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a development relay that speaks the assistant
// protocol and answers with a local Ollama model.
//
// # Endpoints
//
//   - GET  /start_session          - Create a session, returns {session_id}
//   - POST /chat/{sid}             - Text exchange, streams NDJSON
//   - POST /process_file/{sid}     - Multipart upload, streams NDJSON
//   - POST /tts                    - Not implemented (501)
//   - GET  /health                 - Status and counters, no auth
//
// Replies stream as {"chunk": "...", "done": false} lines followed by a
// done line carrying insights. Only .txt uploads are analysed; other
// accepted types get a short reply with file_processed set to false.
//
// # Middleware
//
//   - Bearer token authentication with constant-time comparison
//   - Per-client rate limiting (golang.org/x/time/rate)
//   - Request logging and panic recovery
//
// # Key Types
//
//   - Server: HTTP server with routes and middleware
//   - SessionTable: Live sessions with a fixed lifetime
//   - Insight: Structured observation sent with the done line
//
// # Usage
//
//	srv := server.New(server.Config{
//		Listen: "127.0.0.1:4000",
//		Tokens: []string{"dev-token"},
//	}, ollama.NewClient())
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
