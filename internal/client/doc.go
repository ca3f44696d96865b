// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client for the health assistant service.
//
// The service exposes four endpoints, all authenticated with a bearer
// credential:
//
//	GET  /start_session              -> {"session_id": "..."}
//	POST /chat/{session_id}          JSON body, NDJSON event stream
//	POST /process_file/{session_id}  multipart body, NDJSON event stream
//	POST /tts                        JSON body, audio bytes
//
// Streaming methods return the open response body; decoding it is the
// job of package stream.
//
// # Key Types
//
//   - Client: Thread-safe API client with request pacing
//   - ClientConfig: Base URL, timeouts and rate limits
//   - ClientError: Typed error; 401 responses match ErrUnauthorized
//   - TextRequest, FileRequest: Exchange request bodies
//
// # Usage
//
//	c := client.NewClientWithConfig(&client.ClientConfig{BaseURL: url})
//	sessionID, err := c.StartSession(ctx, credential)
//
//	body, err := c.OpenTextStream(ctx, sessionID, credential, client.TextRequest{
//	    Message:  "What is fever?",
//	    Language: "English",
//	    Email:    "user@example.com",
//	})
//	if client.IsUnauthorized(err) {
//	    // drop the session and log in again
//	}
//	defer body.Close()
package client
