// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package playback

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// CommandPlayer saves each clip under Dir and, when Command is set, plays
// it with an external program such as "mpg123 -q" or "afplay". The clip
// path is appended as the last argument.
type CommandPlayer struct {
	Dir     string
	Command string

	// OnFinished is called when a clip ends without being paused.
	OnFinished func(id string)

	// OnSaved is called with the clip path after it is written.
	OnSaved func(id, path string)

	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// NewCommandPlayer creates a player writing into dir.
func NewCommandPlayer(dir, command string) *CommandPlayer {
	return &CommandPlayer{
		Dir:     dir,
		Command: command,
		procs:   make(map[string]*exec.Cmd),
	}
}

// Path returns where the clip for id is stored.
func (p *CommandPlayer) Path(id string) string {
	return filepath.Join(p.Dir, id+".mp3")
}

// Play writes the clip and starts the command without waiting for it.
func (p *CommandPlayer) Play(id string, audio []byte) error {
	path := p.Path(id)
	if _, err := os.Stat(path); err != nil {
		if err := util.AtomicWriteFile(path, audio, 0600); err != nil {
			return fmt.Errorf("save clip: %w", err)
		}
	}
	if p.OnSaved != nil {
		p.OnSaved(id, path)
	}

	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return nil
	}

	cmd := exec.Command(fields[0], append(fields[1:], path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", fields[0], err)
	}

	p.mu.Lock()
	if p.procs == nil {
		p.procs = make(map[string]*exec.Cmd)
	}
	p.procs[id] = cmd
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		current, ok := p.procs[id]
		finished := ok && current == cmd
		if finished {
			delete(p.procs, id)
		}
		p.mu.Unlock()
		if finished && p.OnFinished != nil {
			p.OnFinished(id)
		}
	}()
	return nil
}

// Pause stops the command playing id, if any.
func (p *CommandPlayer) Pause(id string) {
	p.mu.Lock()
	cmd, ok := p.procs[id]
	delete(p.procs, id)
	p.mu.Unlock()

	if ok && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Close stops every running command.
func (p *CommandPlayer) Close() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.procs))
	for id := range p.procs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Pause(id)
	}
}
