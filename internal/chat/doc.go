// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat ties a conversation together: the session, the record
// store, exchanges, spoken playback and transcript persistence.
//
// # Key Types
//
//   - Service: One conversation with the assistant service
//   - Request: A text message, optionally with a file
//   - API: The service operations a Service needs (implemented by client.Client)
//
// # Usage
//
//	svc := chat.New(cfg, chat.Options{Transcripts: store})
//	defer svc.Close()
//
//	out := svc.Send(ctx, chat.Request{Message: "What is fever?"})
//	if out.Err != nil {
//	    // the failure is already shown as a system record
//	}
package chat
