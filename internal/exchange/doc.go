// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package exchange drives one request/response exchange with the
// assistant service and reconciles it with the record store.
//
// An Orchestrator is single-use. Its lifecycle is:
//
//	idle -> opening -> streaming -> finalizing -> complete
//	                \-> failing -> failed
//
// On opening it inserts the user record and an empty streaming
// placeholder. Every chunk rewrites the placeholder body. A done event
// replaces the placeholder with a terminal record under a new id; any
// failure removes the placeholder and inserts a system error record
// instead, so a partial reply is never shown as if it were complete.
//
// The orchestrator only remembers record ids. Because store operations
// on a missing id are no-ops, an exchange that outlives its view (or is
// cancelled midway) cannot corrupt the record list.
//
// # Key Types
//
//   - Orchestrator: Runs one exchange
//   - Params: Everything the exchange needs, passed explicitly
//   - Outcome: Final state, record ids, reply and cause of failure
//   - Streamer: Transport collaborator (implemented by client.Client)
//
// # Usage
//
//	o := exchange.New(records, apiClient, exchange.Params{
//	    Kind:       exchange.KindText,
//	    SessionID:  sess.ID,
//	    Credential: sess.Credential,
//	    Identity:   sess.Identity,
//	    Language:   "English",
//	    Message:    "What is fever?",
//	}, exchange.Options{InactivityTimeout: 2 * time.Minute})
//	out := o.Run(ctx)
//	if client.IsUnauthorized(out.Err) {
//	    sessions.Invalidate("unauthorized")
//	}
package exchange
