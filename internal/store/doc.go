// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the ordered, id-addressed list of exchange records
// that the user sees.
//
// Every per-id operation is a silent no-op when the id is absent. This is
// what makes late updates from a cancelled or torn-down exchange harmless:
// they simply find nothing to touch.
//
// # Key Types
//
//   - Store: Mutex-guarded record sequence with change notifications
//   - Change: One notification per successful mutation
//   - Op: Kind of mutation (insert, update, replace, remove)
//
// # Usage
//
//	s := store.New()
//	cancel := s.Subscribe(func(c store.Change) { view.Apply(c) })
//	defer cancel()
//
//	_ = s.Insert(placeholder)
//	s.UpdateBody(placeholder.ID, "Fever is")
//	s.Replace(placeholder.ID, final)
package store
