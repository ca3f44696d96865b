// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Sentinel errors for session acquisition.
var (
	ErrNoCredentials = errors.New("session: not logged in")
	ErrEmptySession  = errors.New("session: service returned an empty session id")
)

// Starter exchanges a bearer credential for a service session id.
type Starter interface {
	StartSession(ctx context.Context, credential string) (string, error)
}

// Session is a snapshot of an acquired session.
type Session struct {
	ID         string
	Credential string
	Identity   string
	AcquiredAt time.Time
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the current session.
type Manager struct {
	mu sync.Mutex

	starter Starter
	logger  *log.Logger
	now     func() time.Time

	// Credentials from the identity provider
	identity   string
	credential string

	current      *Session
	lastActivity time.Time

	// Expiry configuration
	maxAge      time.Duration
	idleTimeout time.Duration

	// acquireMu serializes network acquisition so concurrent exchanges
	// share one session instead of racing to create several.
	acquireMu sync.Mutex

	onInvalidate func(reason string)
}

// Config holds configuration for the session manager.
type Config struct {
	// MaxAge is how long a session stays valid after acquisition
	// (default: 24 hours, matching the service's own expiry)
	MaxAge time.Duration

	// IdleTimeout drops the session after inactivity (default: 30 minutes,
	// 0 disables)
	IdleTimeout time.Duration

	// Logger receives session events (default: log.Default())
	Logger *log.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:      24 * time.Hour,
		IdleTimeout: 30 * time.Minute,
	}
}

// NewManager creates a session manager that acquires sessions through
// starter.
func NewManager(starter Starter, cfg Config) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Manager{
		starter:     starter,
		logger:      cfg.Logger,
		now:         time.Now,
		maxAge:      cfg.MaxAge,
		idleTimeout: cfg.IdleTimeout,
	}
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// SetCredentials records the identity and bearer credential of the
// logged-in user. Any session acquired with other credentials is dropped.
func (m *Manager) SetCredentials(identity, credential string) {
	m.mu.Lock()
	changed := m.credential != credential || m.identity != identity
	m.identity = identity
	m.credential = credential
	if changed {
		m.current = nil
	}
	m.mu.Unlock()
}

// HasCredentials reports whether a credential is available.
func (m *Manager) HasCredentials() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential != ""
}

// Identity returns the logged-in user identity.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Credential returns the bearer credential, or "" when logged out.
func (m *Manager) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

// Logout drops the session and the credentials.
func (m *Manager) Logout() {
	m.invalidate("logout", true)
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// Acquire returns the current session, starting a new one when there is
// none or the current one has expired.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	if s, ok := m.Current(); ok {
		return s, nil
	}

	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()

	// Another caller may have acquired while we waited
	if s, ok := m.Current(); ok {
		return s, nil
	}

	m.mu.Lock()
	credential, identity := m.credential, m.identity
	m.mu.Unlock()
	if credential == "" {
		return Session{}, ErrNoCredentials
	}

	id, err := m.starter.StartSession(ctx, credential)
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	if id == "" {
		return Session{}, ErrEmptySession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Credentials changed while the request was in flight
	if m.credential != credential {
		return Session{}, ErrNoCredentials
	}
	now := m.now()
	m.current = &Session{
		ID:         id,
		Credential: credential,
		Identity:   identity,
		AcquiredAt: now,
	}
	m.lastActivity = now
	m.logger.Printf("SESSION_ACQUIRED | identity=%s", identity)
	return *m.current, nil
}

// Current returns the current session if one exists and has not expired.
// An expired session is dropped.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return Session{}, false
	}
	if reason := m.expiredLocked(); reason != "" {
		m.mu.Unlock()
		m.invalidate(reason, false)
		return Session{}, false
	}
	s := *m.current
	m.mu.Unlock()
	return s, true
}

// Invalidate drops the session and the credential that produced it.
// Called when the service rejects the credential, so the user has to
// authenticate again.
func (m *Manager) Invalidate(reason string) {
	m.invalidate(reason, true)
}

func (m *Manager) invalidate(reason string, dropCredentials bool) {
	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	if dropCredentials {
		had = had || m.credential != ""
		m.credential = ""
		m.identity = ""
	}
	cb := m.onInvalidate
	m.mu.Unlock()

	if !had {
		return
	}
	m.logger.Printf("SESSION_INVALIDATED | reason=%s", reason)
	if cb != nil {
		cb(reason)
	}
}

// expiredLocked returns a non-empty reason when the session has expired.
func (m *Manager) expiredLocked() string {
	now := m.now()
	if now.Sub(m.current.AcquiredAt) >= m.maxAge {
		return "expired"
	}
	if m.idleTimeout > 0 && now.Sub(m.lastActivity) >= m.idleTimeout {
		return "idle timeout"
	}
	return ""
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
}

// IdleTime returns how long since last activity.
func (m *Manager) IdleTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastActivity.IsZero() {
		return 0
	}
	return m.now().Sub(m.lastActivity)
}

// Check drops the session if it has expired and reports whether a valid
// session remains. Intended to be called periodically.
func (m *Manager) Check() bool {
	_, ok := m.Current()
	return ok
}

// SetInvalidateCallback sets the function called when the session is
// dropped for any reason.
func (m *Manager) SetInvalidateCallback(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInvalidate = fn
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current session status.
type Status struct {
	LoggedIn      bool
	Active        bool
	Identity      string
	AcquiredAt    time.Time
	Age           time.Duration
	IdleTime      time.Duration
	RemainingTime time.Duration
}

// GetStatus returns the current session status without modifying it.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		LoggedIn: m.credential != "",
		Identity: m.identity,
	}
	if m.current == nil || m.expiredLocked() != "" {
		return st
	}

	now := m.now()
	st.Active = true
	st.AcquiredAt = m.current.AcquiredAt
	st.Age = now.Sub(m.current.AcquiredAt)
	st.IdleTime = now.Sub(m.lastActivity)
	st.RemainingTime = m.maxAge - st.Age
	if m.idleTimeout > 0 {
		if idleLeft := m.idleTimeout - st.IdleTime; idleLeft < st.RemainingTime {
			st.RemainingTime = idleLeft
		}
	}
	return st
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
