// Package returnurl remembers where the user was before being sent off to
// sign in, and validates that destination before anyone is redirected to it.
package returnurl

import (
	"context"
	"net/url"
	"strings"

	"github.com/digitalmarketplace/trybuy-front/internal/log"
	"github.com/digitalmarketplace/trybuy-front/internal/storage"
)

// Store captures and resolves the pending return URL for a session.
// Resolution never fails: anything invalid, blocklisted, or unreadable
// falls back to the default landing path.
type Store struct {
	sessions    storage.SessionStore
	defaultPath string
	blocklist   []string
}

// New creates a return-URL store. The blocklist should contain the
// callback path itself plus any paths that must never be a "return to"
// destination (signup pages cause redirect loops).
func New(sessions storage.SessionStore, defaultPath string, blocklist []string) *Store {
	return &Store{
		sessions:    sessions,
		defaultPath: defaultPath,
		blocklist:   blocklist,
	}
}

// Capture stores the candidate URL for later resolution. Blocklisted
// destinations are skipped silently so a sign-in started from the callback
// page can't loop back into it.
func (s *Store) Capture(ctx context.Context, sessionID string, u *url.URL) {
	if s.isBlocked(u.Path) {
		log.LogDebugWithFields("returnurl", "Skipping blocklisted return URL", map[string]any{
			"path": u.Path,
		})
		return
	}

	if err := s.sessions.Set(ctx, sessionID, storage.KeyReturnURL, u.RequestURI()); err != nil {
		// Losing the return URL only costs the user their place, not the
		// sign-in itself.
		log.LogWarnWithFields("returnurl", "Failed to persist return URL", map[string]any{
			"error": err.Error(),
		})
	}
}

// Resolve returns the stored destination if it passes validation, else the
// default landing path. Storage errors degrade to the default.
func (s *Store) Resolve(ctx context.Context, sessionID string) string {
	stored, err := s.sessions.Get(ctx, sessionID, storage.KeyReturnURL)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.LogWarnWithFields("returnurl", "Failed to read return URL", map[string]any{
				"error": err.Error(),
			})
		}
		return s.defaultPath
	}

	if !s.Allowed(stored) {
		log.LogWarnWithFields("returnurl", "Rejecting invalid return URL", map[string]any{
			"candidate": stored,
		})
		return s.defaultPath
	}
	return stored
}

// Allowed reports whether candidate passes both the structural checks and
// the blocklist.
func (s *Store) Allowed(candidate string) bool {
	return ValidPath(candidate) && !s.isBlocked(pathOnly(candidate))
}

// Clear removes the pending return URL
func (s *Store) Clear(ctx context.Context, sessionID string) {
	if err := s.sessions.Delete(ctx, sessionID, storage.KeyReturnURL); err != nil {
		log.LogWarnWithFields("returnurl", "Failed to clear return URL", map[string]any{
			"error": err.Error(),
		})
	}
}

// ValidPath reports whether candidate is a safe same-origin relative path.
// The checks are structural, not semantic: anything that could be
// interpreted as an absolute URL, a protocol-relative URL, or a smuggled
// path separator is rejected.
func ValidPath(candidate string) bool {
	if candidate == "" || candidate[0] != '/' {
		return false
	}
	if strings.HasPrefix(candidate, "//") {
		return false
	}
	if strings.Contains(candidate, "://") {
		return false
	}
	if strings.Contains(candidate, `\`) {
		return false
	}
	if strings.Contains(strings.ToLower(candidate), "%2f") {
		return false
	}
	return true
}

func (s *Store) isBlocked(path string) bool {
	for _, blocked := range s.blocklist {
		if path == blocked || strings.HasPrefix(path, blocked+"/") {
			return true
		}
	}
	return false
}

func pathOnly(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
