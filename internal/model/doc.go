// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for exchange records and
// transcripts.
//
// A Record is one visible entry in a conversation: a user turn, an
// assistant reply (possibly still streaming), or a system notice such as
// an error. Records are identified by opaque ids that are never reused.
//
// # Key Types
//
//   - Record: Single entry with role, body, status and optional annotations
//   - Role: Record role enumeration (user, assistant, system)
//   - Status: Record lifecycle (pending, streaming, complete, failed)
//   - Annotation: Structured insight attached to a finalized assistant reply
//   - Attachment: Reference to an uploaded file
//   - Transcript: Persistable sequence of finalized records
//
// # Usage
//
//	rec := model.NewRecord(model.RoleUser, "What is fever?")
//	placeholder := model.NewPlaceholder()
//	final := placeholder.Finalize(body, annotations)
package model
