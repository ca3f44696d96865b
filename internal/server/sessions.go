// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anthonyvijay10/GrealthAI/internal/ollama"
)

// DefaultSessionTTL is how long a relay session lives after creation.
const DefaultSessionTTL = 24 * time.Hour

// maxHistory bounds the messages replayed to the model per turn.
const maxHistory = 20

// =============================================================================
// SESSION
// =============================================================================

// Session is one conversation held by the relay.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	history []ollama.Message
	recent  []string // "User: ..." / "Assistant: ..." lines for insights
}

// History returns a copy of the model-facing history.
func (s *Session) History() []ollama.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ollama.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append records a completed turn.
func (s *Session) Append(userPrompt, userSummary, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ollama.NewUserMessage(userPrompt), ollama.NewAssistantMessage(reply))
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	s.recent = append(s.recent, "User: "+userSummary, "Assistant: "+reply)
	if len(s.recent) > 4 {
		s.recent = s.recent[len(s.recent)-4:]
	}
}

// Recent returns the last two turns as text.
func (s *Session) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recent))
	copy(out, s.recent)
	return out
}

// =============================================================================
// SESSION TABLE
// =============================================================================

// SessionTable holds live sessions keyed by id.
type SessionTable struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionTable creates a table whose sessions expire after ttl.
func NewSessionTable(ttl time.Duration) *SessionTable {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTable{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session and sweeps expired ones.
func (t *SessionTable) Create() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked()

	s := &Session{ID: uuid.NewString(), CreatedAt: t.now()}
	t.sessions[s.ID] = s
	return s
}

// Get returns the live session with the given id, or nil.
func (t *SessionTable) Get(id string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil
	}
	if t.expired(s) {
		delete(t.sessions, id)
		return nil
	}
	return s
}

// Len returns the number of sessions held, including expired ones not
// yet swept.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (t *SessionTable) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked()
}

func (t *SessionTable) sweepLocked() int {
	n := 0
	for id, s := range t.sessions {
		if t.expired(s) {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}

func (t *SessionTable) expired(s *Session) bool {
	return t.now().Sub(s.CreatedAt) > t.ttl
}
