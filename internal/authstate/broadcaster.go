// Package authstate owns the session's authentication state: whether a
// trial token is held, and telling interested parties when that changes.
package authstate

import (
	"context"
	"sync"

	"github.com/digitalmarketplace/trybuy-front/internal/log"
	"github.com/digitalmarketplace/trybuy-front/internal/storage"
	"github.com/digitalmarketplace/trybuy-front/internal/token"
)

// Listener is invoked with the current authentication state: once
// immediately on subscription, then on every change.
type Listener func(authenticated bool)

// Broadcaster tracks one session's authentication state. The session store
// is the single source of truth; the broadcaster never caches the token.
//
// All methods are safe for concurrent use.
type Broadcaster struct {
	sessions  storage.SessionStore
	sessionID string
	validator token.Validator

	mu        sync.Mutex
	listeners []*registration
}

type registration struct {
	fn Listener
}

// New creates a broadcaster bound to one session. validator may be nil, in
// which case stored tokens are trusted until the trial API rejects them.
func New(sessions storage.SessionStore, sessionID string, validator token.Validator) *Broadcaster {
	return &Broadcaster{
		sessions:  sessions,
		sessionID: sessionID,
		validator: validator,
	}
}

// Token returns the stored bearer token, or ok=false when the session is
// unauthenticated. An expired token is cleared as a side effect so the next
// read doesn't repeat the work.
func (b *Broadcaster) Token(ctx context.Context) (string, bool) {
	value, err := b.sessions.Get(ctx, b.sessionID, storage.KeyAuthToken)
	if err != nil {
		if !storage.IsNotFound(err) {
			// An unreadable store means we can't prove the user is signed
			// in, so they aren't.
			log.LogErrorWithFields("authstate", "Failed to read auth token", map[string]any{
				"error": err.Error(),
			})
		}
		return "", false
	}

	if b.validator != nil {
		if err := b.validator.Validate(value); err != nil {
			log.LogInfoWithFields("authstate", "Clearing expired token", map[string]any{
				"reason": err.Error(),
			})
			b.clearToken(ctx)
			return "", false
		}
	}
	return value, true
}

// IsAuthenticated reports whether the session currently holds a usable token
func (b *Broadcaster) IsAuthenticated(ctx context.Context) bool {
	_, ok := b.Token(ctx)
	return ok
}

// Login stores the token and notifies listeners. Storing the same token
// again still notifies: the caller signed in deliberately and the UI should
// react.
func (b *Broadcaster) Login(ctx context.Context, tok string) error {
	if err := b.sessions.Set(ctx, b.sessionID, storage.KeyAuthToken, tok); err != nil {
		return err
	}
	b.notify(true)
	return nil
}

// Logout discards the token and notifies listeners. Logout of an already
// signed-out session is a no-op notification-wise.
func (b *Broadcaster) Logout(ctx context.Context) {
	_, hadToken := b.Token(ctx)
	b.clearToken(ctx)
	if hadToken {
		b.notify(false)
	}
}

// Invalidate drops the token without the courtesy check Logout does. Used
// when the trial API has already told us the token is dead.
func (b *Broadcaster) Invalidate(ctx context.Context) {
	b.clearToken(ctx)
	b.notify(false)
}

// Subscribe registers a listener and immediately invokes it with the
// current state. The returned function unsubscribes; calling it more than
// once is harmless.
func (b *Broadcaster) Subscribe(ctx context.Context, fn Listener) func() {
	reg := &registration{fn: fn}

	b.mu.Lock()
	b.listeners = append(b.listeners, reg)
	b.mu.Unlock()

	invoke(reg, b.IsAuthenticated(ctx))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, r := range b.listeners {
				if r == reg {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// notify invokes every listener with the new state, in registration order.
// The listener slice is snapshotted first so a listener that unsubscribes
// (itself or a peer) mid-broadcast doesn't skip anyone already queued.
func (b *Broadcaster) notify(authenticated bool) {
	b.mu.Lock()
	snapshot := make([]*registration, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	for _, reg := range snapshot {
		invoke(reg, authenticated)
	}
}

// invoke shields the broadcaster from listener panics: one broken consumer
// must not stop the rest from hearing about the change.
func invoke(reg *registration, authenticated bool) {
	defer func() {
		if r := recover(); r != nil {
			log.LogErrorWithFields("authstate", "Listener panicked", map[string]any{
				"panic": r,
			})
		}
	}()
	reg.fn(authenticated)
}

func (b *Broadcaster) clearToken(ctx context.Context) {
	if err := b.sessions.Delete(ctx, b.sessionID, storage.KeyAuthToken); err != nil {
		log.LogErrorWithFields("authstate", "Failed to clear auth token", map[string]any{
			"error": err.Error(),
		})
	}
}
