// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"slices"
	"sync"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// Sentinel errors for store operations.
var (
	// ErrDuplicateID is returned when inserting an id the store has seen
	// before, even if that record has since been removed.
	ErrDuplicateID = errors.New("store: duplicate record id")

	// ErrClosed is returned by Insert after Close.
	ErrClosed = errors.New("store: closed")
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// Op identifies the kind of mutation.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Change describes one mutation.
type Change struct {
	Op Op

	// ID is the id the operation addressed. For OpReplace it is the id of
	// the record that was replaced; Record carries the new id.
	ID string

	// Record is a copy of the record after the mutation. Zero for OpRemove.
	Record model.Record

	// Index is the record's position after the mutation, or its former
	// position for OpRemove.
	Index int
}

// Listener receives change notifications.
type Listener func(Change)

// =============================================================================
// STORE
// =============================================================================

// Store is the ordered sequence of records shown to the user.
//
// Store is safe for concurrent use. Listeners are called synchronously
// after the mutation, outside the store lock, so they may read the store.
type Store struct {
	mu      sync.Mutex
	records []model.Record
	index   map[string]int  // id -> position
	seen    map[string]bool // every id ever inserted
	closed  bool

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextListen int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		index:     make(map[string]int),
		seen:      make(map[string]bool),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.listenerMu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// notify delivers c to every listener.
func (s *Store) notify(c Change) {
	s.listenerMu.Lock()
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fns := make([]Listener, 0, len(keys))
	for _, k := range keys {
		fns = append(fns, s.listeners[k])
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Insert appends rec to the end of the sequence.
func (s *Store) Insert(rec model.Record) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.seen[rec.ID] {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	rec = rec.Clone()
	s.seen[rec.ID] = true
	s.records = append(s.records, rec)
	idx := len(s.records) - 1
	s.index[rec.ID] = idx
	s.mu.Unlock()

	s.notify(Change{Op: OpInsert, ID: rec.ID, Record: rec.Clone(), Index: idx})
	return nil
}

// UpdateBody replaces the body of the record with the given id. It is a
// no-op if the id is absent or the record is already final.
func (s *Store) UpdateBody(id, body string) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if s.closed || !ok || s.records[idx].Status.IsFinal() {
		s.mu.Unlock()
		return
	}
	s.records[idx].Body = body
	rec := s.records[idx].Clone()
	s.mu.Unlock()

	s.notify(Change{Op: OpUpdate, ID: id, Record: rec, Index: idx})
}

// UpdateStatus sets the status of the record with the given id. It is a
// no-op if the id is absent.
func (s *Store) UpdateStatus(id string, status model.Status) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if s.closed || !ok || s.records[idx].Status == status {
		s.mu.Unlock()
		return
	}
	s.records[idx].Status = status
	rec := s.records[idx].Clone()
	s.mu.Unlock()

	s.notify(Change{Op: OpUpdate, ID: id, Record: rec, Index: idx})
}

// Replace swaps the record with the given id for final, keeping its
// position. If id is absent, final is appended instead. The final record
// must carry an id the store has not seen; otherwise nothing changes.
func (s *Store) Replace(id string, final model.Record) {
	s.mu.Lock()
	if s.closed || (final.ID != id && s.seen[final.ID]) {
		s.mu.Unlock()
		return
	}
	final = final.Clone()
	s.seen[final.ID] = true

	idx, ok := s.index[id]
	if ok {
		delete(s.index, id)
		s.records[idx] = final
	} else {
		s.records = append(s.records, final)
		idx = len(s.records) - 1
	}
	s.index[final.ID] = idx
	s.mu.Unlock()

	s.notify(Change{Op: OpReplace, ID: id, Record: final.Clone(), Index: idx})
}

// Remove deletes the record with the given id. It is a no-op if the id is
// absent. The id stays reserved.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if s.closed || !ok {
		s.mu.Unlock()
		return
	}
	s.records = slices.Delete(s.records, idx, idx+1)
	delete(s.index, id)
	for i := idx; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	s.mu.Unlock()

	s.notify(Change{Op: OpRemove, ID: id, Index: idx})
}

// Close tears the store down. Every later operation is a no-op and no
// further notifications are delivered. Reads still return the last state.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.listenerMu.Lock()
	clear(s.listeners)
	s.listenerMu.Unlock()
}

// Reset drops all records but keeps the set of used ids, so a cleared
// conversation can never resurrect an old id.
func (s *Store) Reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	removed := s.records
	s.records = nil
	clear(s.index)
	s.mu.Unlock()

	for i := len(removed) - 1; i >= 0; i-- {
		s.notify(Change{Op: OpRemove, ID: removed[i].ID, Index: i})
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[id]
	if !ok {
		return model.Record{}, false
	}
	return s.records[idx].Clone(), true
}

// Records returns a copy of the full sequence.
func (s *Store) Records() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
