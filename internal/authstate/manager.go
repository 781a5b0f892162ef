package authstate

import (
	"sync"

	"github.com/digitalmarketplace/trybuy-front/internal/storage"
	"github.com/digitalmarketplace/trybuy-front/internal/token"
)

// Manager hands out one Broadcaster per session so listeners registered
// anywhere in the process observe the same state transitions.
type Manager struct {
	sessions  storage.SessionStore
	validator token.Validator

	mu           sync.Mutex
	broadcasters map[string]*Broadcaster
}

// NewManager creates a broadcaster manager. validator may be nil.
func NewManager(sessions storage.SessionStore, validator token.Validator) *Manager {
	return &Manager{
		sessions:     sessions,
		validator:    validator,
		broadcasters: make(map[string]*Broadcaster),
	}
}

// For returns the broadcaster for the session, creating it on first use
func (m *Manager) For(sessionID string) *Broadcaster {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.broadcasters[sessionID]
	if !ok {
		b = New(m.sessions, sessionID, m.validator)
		m.broadcasters[sessionID] = b
	}
	return b
}

// Forget drops the broadcaster for a session. Called when the session
// itself is removed; a later For recreates a fresh one.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.broadcasters, sessionID)
}

// Len returns the number of tracked sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.broadcasters)
}
