// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Anthonyvijay10/GrealthAI/internal/model"
)

// Sentinel errors for playback requests.
var (
	ErrNotFound      = errors.New("playback: record not found")
	ErrNotFinal      = errors.New("playback: record is still being written")
	ErrNothingToPlay = errors.New("playback: record has no text")
)

// Synthesizer converts text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, language string) ([]byte, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f(ctx, text, language)
}

// Player outputs audio. Play must not block for the length of the clip.
type Player interface {
	Play(id string, audio []byte) error
	Pause(id string)
}

// RecordSource looks records up by id. *store.Store satisfies it.
type RecordSource interface {
	Get(id string) (model.Record, bool)
}

// Config tunes a Coordinator.
type Config struct {
	// CacheEntries bounds the audio cache (default: 32)
	CacheEntries int

	// Logger receives playback events (default: log.Default())
	Logger *log.Logger
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns synthesized audio and the single playing record.
type Coordinator struct {
	records RecordSource
	synth   Synthesizer
	player  Player
	logger  *log.Logger

	fetches singleflight.Group

	mu         sync.Mutex
	cache      map[string][]byte
	order      []string // cache keys, least recently used first
	maxCache   int
	playing    string
	playingKey string
}

// NewCoordinator creates a coordinator.
func NewCoordinator(records RecordSource, synth Synthesizer, player Player, cfg Config) *Coordinator {
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Coordinator{
		records:  records,
		synth:    synth,
		player:   player,
		logger:   cfg.Logger,
		cache:    make(map[string][]byte),
		maxCache: cfg.CacheEntries,
	}
}

// Toggle pauses the record if it is playing, otherwise plays it. It
// reports whether the record is playing afterwards.
func (c *Coordinator) Toggle(ctx context.Context, id, language string) (bool, error) {
	if c.Playing() == id {
		c.Pause(id)
		return false, nil
	}
	if err := c.Play(ctx, id, language); err != nil {
		return false, err
	}
	return true, nil
}

// Play starts playback of a finalized record, pausing any other record.
func (c *Coordinator) Play(ctx context.Context, id, language string) error {
	rec, ok := c.records.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !rec.Status.IsFinal() {
		return ErrNotFinal
	}
	text := strings.TrimSpace(rec.Body)
	if text == "" {
		return ErrNothingToPlay
	}

	audio, err := c.audio(ctx, id, text, language)
	if err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.playing
	c.playing = id
	c.playingKey = cacheKey(id, language)
	c.mu.Unlock()

	if previous != "" && previous != id {
		c.player.Pause(previous)
	}
	if err := c.player.Play(id, audio); err != nil {
		c.mu.Lock()
		if c.playing == id {
			c.playing, c.playingKey = "", ""
		}
		c.mu.Unlock()
		return fmt.Errorf("play audio: %w", err)
	}
	c.logger.Printf("PLAYBACK_START | record=%s bytes=%d", id, len(audio))
	return nil
}

// Pause stops the record if it is the one playing.
func (c *Coordinator) Pause(id string) {
	c.mu.Lock()
	if c.playing != id {
		c.mu.Unlock()
		return
	}
	c.playing, c.playingKey = "", ""
	c.mu.Unlock()

	c.player.Pause(id)
}

// Stop pauses whatever is playing.
func (c *Coordinator) Stop() {
	if id := c.Playing(); id != "" {
		c.Pause(id)
	}
}

// Finished is called by the player when a clip ends on its own.
func (c *Coordinator) Finished(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing == id {
		c.playing, c.playingKey = "", ""
	}
}

// Playing returns the id of the playing record, or "".
func (c *Coordinator) Playing() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Cached reports whether audio for id in language is cached.
func (c *Coordinator) Cached(id, language string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cache[cacheKey(id, language)]
	return ok
}

// =============================================================================
// AUDIO CACHE
// =============================================================================

// cacheKey identifies one record spoken in one language.
func cacheKey(id, language string) string {
	return id + "\x00" + language
}

// audio returns cached audio or fetches it once per record and language.
func (c *Coordinator) audio(ctx context.Context, id, text, language string) ([]byte, error) {
	key := cacheKey(id, language)
	c.mu.Lock()
	if audio, ok := c.cache[key]; ok {
		c.touchLocked(key)
		c.mu.Unlock()
		return audio, nil
	}
	c.mu.Unlock()

	v, err, _ := c.fetches.Do(key, func() (any, error) {
		audio, err := c.synth.Synthesize(ctx, text, language)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = audio
		c.touchLocked(key)
		c.evictLocked()
		c.mu.Unlock()
		c.logger.Printf("PLAYBACK_FETCHED | record=%s language=%s bytes=%d", id, language, len(audio))
		return audio, nil
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return v.([]byte), nil
}

func (c *Coordinator) touchLocked(key string) {
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.order = append(c.order, key)
}

func (c *Coordinator) evictLocked() {
	for len(c.order) > c.maxCache {
		oldest := c.order[0]
		if oldest == c.playingKey {
			// Keep the playing clip; evict the next one instead
			if len(c.order) == 1 {
				return
			}
			oldest = c.order[1]
			c.order = slices.Delete(c.order, 1, 2)
		} else {
			c.order = c.order[1:]
		}
		delete(c.cache, oldest)
	}
}
