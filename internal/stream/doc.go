// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the newline-delimited JSON event stream returned
// by the assistant service and assembles it into one reply.
//
// The pipeline has three stages, each usable on its own:
//
//	bytes --LineReader--> lines --Decoder--> events --Accumulator--> reply
//
// Lines are reassembled across arbitrary read boundaries and processed
// strictly in arrival order. Malformed lines are logged, counted and
// dropped; the stream keeps going. An error event or a done event ends
// the stream and nothing after it is read.
//
// # Key Types
//
//   - LineReader: Lazy, single-use sequence of lines without terminators
//   - Decoder: Turns one line into at most one Event
//   - Event: ChunkEvent, DoneEvent or ErrorEvent
//   - EventReader: LineReader and Decoder combined, stops at the terminal event
//   - Accumulator: Concatenates chunks and freezes the reply on Finalize
//
// # Usage
//
//	events := stream.NewEventReader(resp.Body, logger)
//	acc := stream.NewAccumulator()
//	for {
//	    ev, err := events.Next()
//	    if err != nil {
//	        return err // transport failure or stream.ErrIncomplete
//	    }
//	    switch e := ev.(type) {
//	    case stream.ChunkEvent:
//	        acc.Append(e.Text)
//	    case stream.DoneEvent:
//	        reply := acc.Finalize(e.Insights)
//	        return use(reply)
//	    case stream.ErrorEvent:
//	        return errors.New(e.Message)
//	    }
//	}
package stream
