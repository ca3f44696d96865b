// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama API used by the
// relay server.
//
// # Key Types
//
//   - Client: HTTP client for /api/chat, streaming and non-streaming
//   - StreamReader: NDJSON reader that skips malformed lines
//   - ClientError: Typed errors with IsNotRunning/IsTimeout/IsModelNotFound
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{DefaultModel: "gemma3:1b"})
//	err := client.ChatStream(ctx, "", messages, func(c ollama.StreamChunk) {
//	    fmt.Print(c.Content)
//	})
package ollama
