// Package session issues and reads the browser session cookie that keys
// all server-side state.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/digitalmarketplace/trybuy-front/internal/envutil"
)

// CookieName identifies the session cookie
const CookieName = "trybuy_session"

// CookieMaxAge matches the server-side session idle limit; the sweep loop
// is what actually ends sessions.
const CookieMaxAge = 24 * time.Hour

// FromRequest returns the session ID carried by the request, if any
func FromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Ensure returns the request's session ID, minting and setting a new one
// when the request has none.
func Ensure(w http.ResponseWriter, r *http.Request) string {
	if id, ok := FromRequest(r); ok {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Clear expires the session cookie
func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
}
