// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the authenticated session used by exchanges.
//
// A session pairs the bearer credential issued by the identity provider
// with the session id returned by the assistant service. It is created
// lazily on the first exchange, expires after a maximum age or a period
// of inactivity, and is dropped as soon as the service rejects it. An
// expired or rejected session is never reused.
//
// # Key Types
//
//   - Manager: Owns the current session and its credentials
//   - Session: Immutable snapshot of an acquired session
//   - Starter: Collaborator that exchanges a credential for a session id
//
// # Usage
//
//	mgr := session.NewManager(apiClient, session.DefaultConfig())
//	mgr.SetCredentials("user@example.com", idToken)
//
//	sess, err := mgr.Acquire(ctx)
//	if errors.Is(err, session.ErrNoCredentials) {
//	    // prompt for login
//	}
//
// Drop the session when the service answers 401:
//
//	mgr.Invalidate("unauthorized")
package session
