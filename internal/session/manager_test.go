// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStarter hands out sequential session ids.
type fakeStarter struct {
	calls atomic.Int32
	err   error
	delay time.Duration
	creds []string
	mu    sync.Mutex
}

func (f *fakeStarter) StartSession(ctx context.Context, credential string) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.creds = append(f.creds, credential)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return "sess-" + string(rune('0'+n)), nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(starter Starter, cfg Config) (*Manager, *fakeClock) {
	cfg.Logger = log.New(io.Discard, "", 0)
	m := NewManager(starter, cfg)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, clock
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAge != 24*time.Hour {
		t.Errorf("Default MaxAge = %v, want 24h", cfg.MaxAge)
	}
	if cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("Default IdleTimeout = %v, want 30m", cfg.IdleTimeout)
	}
}

// =============================================================================
// ACQUISITION TESTS
// =============================================================================

func TestManager_AcquireWithoutCredentials(t *testing.T) {
	starter := &fakeStarter{}
	m, _ := newTestManager(starter, DefaultConfig())

	_, err := m.Acquire(context.Background())

	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Zero(t, starter.calls.Load(), "no network call without credentials")
}

func TestManager_AcquireReusesValidSession(t *testing.T) {
	starter := &fakeStarter{}
	m, _ := newTestManager(starter, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, "jwt-1", s1.Credential)
	assert.Equal(t, "user@example.com", s1.Identity)
	assert.Equal(t, int32(1), starter.calls.Load())
}

func TestManager_ConcurrentAcquireSharesSession(t *testing.T) {
	starter := &fakeStarter{delay: 20 * time.Millisecond}
	m, _ := newTestManager(starter, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), starter.calls.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestManager_AcquireStarterError(t *testing.T) {
	boom := errors.New("connection refused")
	m, _ := newTestManager(&fakeStarter{err: boom}, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")

	_, err := m.Acquire(context.Background())

	assert.ErrorIs(t, err, boom)
	_, ok := m.Current()
	assert.False(t, ok)
}

// =============================================================================
// EXPIRY TESTS
// =============================================================================

func TestManager_ExpiredSessionNeverReused(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		touch   bool
	}{
		{"max age", 25 * time.Hour, true},
		{"idle timeout", 31 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{}
			m, clock := newTestManager(starter, DefaultConfig())
			m.SetCredentials("user@example.com", "jwt-1")

			first, err := m.Acquire(context.Background())
			require.NoError(t, err)

			if tt.touch {
				// Stay active so only the max age applies
				for elapsed := time.Duration(0); elapsed < tt.advance; elapsed += 10 * time.Minute {
					clock.Advance(10 * time.Minute)
					m.RecordActivity()
				}
			} else {
				clock.Advance(tt.advance)
			}

			_, ok := m.Current()
			assert.False(t, ok)

			second, err := m.Acquire(context.Background())
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			assert.Equal(t, int32(2), starter.calls.Load())
		})
	}
}

func TestManager_ActivityExtendsIdleWindow(t *testing.T) {
	m, clock := newTestManager(&fakeStarter{}, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	m.RecordActivity()
	clock.Advance(20 * time.Minute)

	assert.True(t, m.Check())
	assert.Equal(t, 20*time.Minute, m.IdleTime())
}

// =============================================================================
// INVALIDATION TESTS
// =============================================================================

func TestManager_InvalidateDropsCredentials(t *testing.T) {
	m, _ := newTestManager(&fakeStarter{}, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	var reasons []string
	m.SetInvalidateCallback(func(reason string) { reasons = append(reasons, reason) })

	m.Invalidate("unauthorized")

	assert.False(t, m.HasCredentials())
	assert.Equal(t, "", m.Identity())
	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, []string{"unauthorized"}, reasons)

	m.Invalidate("again")
	assert.Len(t, reasons, 1, "no callback when nothing was dropped")
}

func TestManager_SetCredentialsDropsOldSession(t *testing.T) {
	starter := &fakeStarter{}
	m, _ := newTestManager(starter, DefaultConfig())
	m.SetCredentials("a@example.com", "jwt-a")
	first, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.SetCredentials("b@example.com", "jwt-b")
	second, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{"jwt-a", "jwt-b"}, starter.creds)
}

func TestManager_Logout(t *testing.T) {
	m, _ := newTestManager(&fakeStarter{}, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.Logout()

	st := m.GetStatus()
	assert.False(t, st.LoggedIn)
	assert.False(t, st.Active)
}

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestManager_GetStatus(t *testing.T) {
	m, clock := newTestManager(&fakeStarter{}, DefaultConfig())
	m.SetCredentials("user@example.com", "jwt-1")
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	st := m.GetStatus()

	assert.True(t, st.LoggedIn)
	assert.True(t, st.Active)
	assert.Equal(t, 10*time.Minute, st.Age)
	assert.Equal(t, 20*time.Minute, st.RemainingTime, "idle window is the tighter bound")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
