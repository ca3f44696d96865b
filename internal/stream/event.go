// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// Event is one decoded stream event: ChunkEvent, DoneEvent or ErrorEvent.
type Event interface {
	// Terminal reports whether the event ends the stream.
	Terminal() bool
	isEvent()
}

// ChunkEvent carries the next piece of reply text.
type ChunkEvent struct {
	Text string
}

// DoneEvent ends the stream successfully.
type DoneEvent struct {
	// Text is any reply text carried on the done line itself. The service
	// normally sends an empty chunk here.
	Text string

	Insights []model.Annotation

	// FileProcessed is only present on file exchanges.
	FileProcessed *bool

	IsFirstMessage bool

	// Extra holds fields the decoder does not interpret.
	Extra map[string]json.RawMessage
}

// ErrorEvent ends the stream with a service-side failure.
type ErrorEvent struct {
	Message string
}

func (ChunkEvent) Terminal() bool { return false }
func (DoneEvent) Terminal() bool  { return true }
func (ErrorEvent) Terminal() bool { return true }

func (ChunkEvent) isEvent() {}
func (DoneEvent) isEvent()  {}
func (ErrorEvent) isEvent() {}

// FileFullyProcessed reports whether the service confirmed that an
// uploaded file was processed. Absent means not confirmed.
func (e DoneEvent) FileFullyProcessed() bool {
	return e.FileProcessed != nil && *e.FileProcessed
}
