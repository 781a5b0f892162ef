package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key doesn't exist in a session
var ErrKeyNotFound = errors.New("session key not found")

// ErrSessionNotFound is returned when a session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

// Canonical session keys. At most one value is ever stored per key per
// session; writes fully replace the previous value.
const (
	KeyAuthToken   = "authToken"
	KeyReturnURL   = "returnTo"
	KeyWelcomeBack = "welcomeBack"
	KeyLoginNonce  = "loginNonce"
	KeyAuthError   = "authError"
)

// SessionStore is the session-scoped key/value port used by the auth flow.
// Implementations must treat a missing session the same as a missing key
// for reads: callers only distinguish "value present" from "value absent".
type SessionStore interface {
	// Get returns the value stored under key for the session, or
	// ErrKeyNotFound / ErrSessionNotFound when absent.
	Get(ctx context.Context, sessionID, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, sessionID, key, value string) error

	// Delete removes key from the session. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, sessionID, key string) error

	// DeleteSession removes the session and all its keys.
	DeleteSession(ctx context.Context, sessionID string) error
}

// IsNotFound reports whether err means "value absent" regardless of which
// sentinel the implementation chose.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrSessionNotFound)
}
