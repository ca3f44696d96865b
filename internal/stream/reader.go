// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"log"
)

// ErrIncomplete is returned when the source ends before a done or error
// event arrives.
var ErrIncomplete = errors.New("stream: ended without a terminal event")

// =============================================================================
// EVENT READER
// =============================================================================

// EventReader combines a LineReader and a Decoder. It stops reading at
// the first terminal event: after a done or error event Next returns
// io.EOF without touching the source again.
type EventReader struct {
	lines   *LineReader
	decoder *Decoder
	done    bool
	lineCnt int
}

// NewEventReader creates an EventReader with default line limits.
func NewEventReader(r io.Reader, logger *log.Logger) *EventReader {
	return NewEventReaderSize(r, DefaultMaxLineSize, logger)
}

// NewEventReaderSize creates an EventReader with a custom line limit.
func NewEventReaderSize(r io.Reader, maxLine int, logger *log.Logger) *EventReader {
	return &EventReader{
		lines:   NewLineReaderSize(r, maxLine),
		decoder: NewDecoder(logger),
	}
}

// Next returns the next event.
//
// Errors:
//   - io.EOF after a terminal event has been returned
//   - ErrIncomplete if the source ends before any terminal event; callers
//     holding chunk text may still keep it as the reply
//   - ErrLineTooLong or the underlying read error on transport failure
func (er *EventReader) Next() (Event, error) {
	if er.done {
		return nil, io.EOF
	}
	for {
		line, err := er.lines.Next()
		if errors.Is(err, io.EOF) {
			er.done = true
			return nil, ErrIncomplete
		}
		if err != nil {
			er.done = true
			return nil, err
		}
		er.lineCnt++

		ev, ok := er.decoder.Decode(line)
		if !ok {
			continue
		}
		if ev.Terminal() {
			er.done = true
		}
		return ev, nil
	}
}

// Malformed returns the number of malformed lines dropped so far.
func (er *EventReader) Malformed() int64 {
	return er.decoder.Malformed()
}

// LinesRead returns the number of lines read so far.
func (er *EventReader) LinesRead() int {
	return er.lineCnt
}
