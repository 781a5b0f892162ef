package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStore implements the port
var _ SessionStore = (*MemoryStore)(nil)

type memorySession struct {
	values   map[string]string
	lastUsed time.Time
}

// MemoryStore is a simple in-memory session store. It is the default
// backend and the one used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

// Get returns the value stored under key for the session
func (s *MemoryStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	value, ok := session.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Set stores value under key, replacing any previous value
func (s *MemoryStore) Set(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = &memorySession{values: make(map[string]string)}
		s.sessions[sessionID] = session
	}
	session.values[key] = value
	session.lastUsed = s.now()
	return nil
}

// Delete removes key from the session
func (s *MemoryStore) Delete(ctx context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(session.values, key)
	session.lastUsed = s.now()
	return nil
}

// DeleteSession removes the session and all its keys
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed. The cleanup loop in the application calls this periodically.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
