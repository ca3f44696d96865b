// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/store"
)

// =============================================================================
// LIVE PRINTER
// =============================================================================

// Printer writes store changes to a terminal as they happen. One
// assistant reply at a time is streamed chunk by chunk; replies that
// finish while another is streaming are printed whole.
type Printer struct {
	out      io.Writer
	renderer *Renderer

	// EchoUser prints user records. Off in interactive mode, where the
	// user already sees what they typed.
	EchoUser bool

	mu      sync.Mutex
	active  string // id of the streaming record being printed
	printed int    // bytes of its body already written
	midLine bool
	resume  bool // another record was printed mid-stream
}

// NewPrinter creates a printer.
func NewPrinter(out io.Writer, r *Renderer) *Printer {
	return &Printer{out: out, renderer: r}
}

// Attach subscribes the printer to s. Call the returned function to stop.
func (p *Printer) Attach(s *store.Store) func() {
	return s.Subscribe(p.Handle)
}

// Handle prints one change.
func (p *Printer) Handle(c store.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := c.Record
	switch c.Op {
	case store.OpInsert:
		switch {
		case rec.Role == model.RoleAssistant && rec.IsStreaming():
			if p.active == "" {
				p.newLine()
				p.active = rec.ID
				p.printed = 0
				p.write(p.renderer.Label(rec) + " ")
				p.midLine = true
			}
		case rec.Role == model.RoleUser && !p.EchoUser:
		default:
			p.newLine()
			p.writeln(p.renderer.Record(rec))
			p.resume = p.active != ""
		}

	case store.OpUpdate:
		if rec.ID == p.active && rec.IsStreaming() {
			p.writeDelta(rec)
		}

	case store.OpReplace:
		if c.ID != p.active {
			p.newLine()
			p.writeln(p.renderer.Record(rec))
			p.resume = p.active != ""
			return
		}
		p.writeDelta(rec)
		p.newLine()
		if len(rec.Annotations) > 0 {
			p.writeln(p.renderer.Annotations(rec.Annotations))
		}
		p.active = ""
		p.resume = false

	case store.OpRemove:
		if c.ID == p.active {
			p.newLine()
			p.active = ""
			p.resume = false
		}
	}
}

// Notice prints a status line between records without breaking a reply
// that is streaming.
func (p *Printer) Notice(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newLine()
	p.writeln(line)
	p.resume = p.active != ""
}

func (p *Printer) writeDelta(rec model.Record) {
	body := rec.Body
	if len(body) < p.printed {
		return
	}
	if p.resume {
		p.write(p.renderer.Label(rec) + " " + body[:p.printed])
		p.midLine = true
		p.resume = false
	}
	if delta := body[p.printed:]; delta != "" {
		p.write(delta)
		p.printed = len(body)
		p.midLine = !strings.HasSuffix(delta, "\n")
	}
}

func (p *Printer) newLine() {
	if p.midLine {
		p.write("\n")
		p.midLine = false
	}
}

func (p *Printer) write(s string) {
	fmt.Fprint(p.out, s)
}

func (p *Printer) writeln(s string) {
	fmt.Fprintln(p.out, s)
	p.midLine = false
}
