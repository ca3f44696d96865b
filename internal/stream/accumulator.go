// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"slices"
	"strings"
	"time"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// =============================================================================
// REPLY
// =============================================================================

// Reply is the frozen result of one exchange.
type Reply struct {
	Body        string
	Annotations []model.Annotation
	Stats       Stats
}

// Stats describes how a reply arrived.
type Stats struct {
	Chunks int

	StartTime      time.Time
	FirstChunkTime time.Time
	EndTime        time.Time

	// TTFC is the time to first chunk
	TTFC     time.Duration
	Duration time.Duration
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator concatenates chunk text in arrival order. Text is kept
// exactly as received: no trimming, no deduplication.
//
// Append after Finalize is a programming error and panics.
type Accumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	body      strings.Builder
	stats     Stats
	finalized bool
}

// NewAccumulator creates an empty accumulator and starts its clock.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		stats: Stats{StartTime: time.Now()},
	}
}

// Append adds text and returns the running body.
func (a *Accumulator) Append(text string) string {
	if a.finalized {
		panic("stream: append after finalize")
	}
	if a.stats.Chunks == 0 {
		a.stats.FirstChunkTime = time.Now()
		a.stats.TTFC = a.stats.FirstChunkTime.Sub(a.stats.StartTime)
	}
	a.stats.Chunks++
	a.body.WriteString(text)
	return a.body.String()
}

// Body returns the text accumulated so far.
func (a *Accumulator) Body() string {
	return a.body.String()
}

// Finalized reports whether Finalize has been called.
func (a *Accumulator) Finalized() bool {
	return a.finalized
}

// Finalize freezes the reply and attaches annotations. Finalizing twice
// panics like Append does.
func (a *Accumulator) Finalize(annotations []model.Annotation) Reply {
	if a.finalized {
		panic("stream: finalize called twice")
	}
	a.finalized = true
	a.stats.EndTime = time.Now()
	a.stats.Duration = a.stats.EndTime.Sub(a.stats.StartTime)

	return Reply{
		Body:        a.body.String(),
		Annotations: annotationsOrNil(slices.Clone(annotations)),
		Stats:       a.stats,
	}
}
