package session

import (
	"context"
	"sync"
)

// Manager holds at most one live session and replaces it on user switch.
type Manager struct {
	deps Deps
	base Config

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager that opens sessions from base with the user
// id overridden per switch.
func NewManager(base Config, deps Deps) *Manager {
	return &Manager{deps: deps, base: base}
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Switch closes the current session and opens one for userID. Switching to
// the user already signed in returns the existing session.
func (m *Manager) Switch(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.UserID() == userID && m.current.Alive() {
		return m.current, nil
	}
	if m.current != nil {
		_ = m.current.Close()
		m.current = nil
	}

	cfg := m.base
	cfg.UserID = userID
	s, err := Open(ctx, cfg, m.deps)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Logout closes the current session, if any.
func (m *Manager) Logout() error {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}
