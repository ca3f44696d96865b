// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"errors"
	"io"
	"iter"
)

// DefaultMaxLineSize bounds a single stream line. A reply chunk is a few
// hundred bytes; the done line carries insights and stays well below this.
const DefaultMaxLineSize = 1 << 20

// ErrLineTooLong is returned when a line exceeds the configured maximum
// without a terminator. It is a transport failure.
var ErrLineTooLong = errors.New("stream: line exceeds maximum size")

// =============================================================================
// LINE READER
// =============================================================================

// LineReader yields complete lines from a byte source, without the
// terminator. Bytes after the last newline are buffered until more data
// arrives; when the source ends, a non-empty trailing partial line is
// yielded exactly once.
//
// A LineReader is single-use and not safe for concurrent use.
type LineReader struct {
	reader  *bufio.Reader
	maxSize int
	buf     []byte
	err     error // sticky; set once the source is exhausted or fails
}

// NewLineReader creates a LineReader with DefaultMaxLineSize.
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderSize(r, DefaultMaxLineSize)
}

// NewLineReaderSize creates a LineReader that rejects lines longer than
// maxSize bytes. A non-positive maxSize selects DefaultMaxLineSize.
func NewLineReaderSize(r io.Reader, maxSize int) *LineReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxLineSize
	}
	return &LineReader{
		reader:  bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// Next returns the next line. It returns io.EOF once every line has been
// yielded, or the underlying read error on transport failure. Errors are
// sticky: every later call returns the same error.
func (lr *LineReader) Next() (string, error) {
	if lr.err != nil {
		return "", lr.err
	}

	lr.buf = lr.buf[:0]
	for {
		frag, err := lr.reader.ReadSlice('\n')
		lr.buf = append(lr.buf, frag...)

		// Room for the "\r\n" terminator on top of the content
		if len(lr.buf) > lr.maxSize+2 {
			lr.err = ErrLineTooLong
			return "", lr.err
		}

		switch {
		case err == nil:
			return lr.finish(lr.buf[:len(lr.buf)-1])
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			lr.err = io.EOF
			if len(lr.buf) == 0 {
				return "", io.EOF
			}
			// Trailing partial line, yielded once
			return lr.finish(lr.buf)
		default:
			lr.err = err
			return "", err
		}
	}
}

// finish strips a trailing carriage return and enforces the size bound.
func (lr *LineReader) finish(line []byte) (string, error) {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > lr.maxSize {
		lr.err = ErrLineTooLong
		return "", lr.err
	}
	return string(line), nil
}

// Lines returns the remaining lines as an iterator. A transport failure
// is yielded once as ("", err) and ends the sequence; io.EOF is not
// yielded.
func (lr *LineReader) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := lr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}
