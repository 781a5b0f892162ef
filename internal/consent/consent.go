// Package consent tracks the user's cookie/analytics consent choice,
// independent of authentication state.
package consent

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/digitalmarketplace/trybuy-front/internal/envutil"
)

// CookieName is the long-lived consent cookie, deliberately separate from
// the session cookie so consent survives sign-out.
const CookieName = "trybuy_consent"

// CurrentVersion is bumped whenever the consent wording changes enough
// that old answers no longer count.
const CurrentVersion = 1

// CookieMaxAge keeps the choice for a year
const CookieMaxAge = 365 * 24 * time.Hour

// Record is the user's stored consent decision
type Record struct {
	Accepted bool `json:"accepted"`
	Version  int  `json:"version"`
}

// FromRequest reads the consent record from the request. Anything that
// fails to decode, or that was recorded against an older wording version,
// counts as "not yet asked".
func FromRequest(r *http.Request) (Record, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Record{}, false
	}

	decoded, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return Record{}, false
	}

	var record Record
	if err := json.Unmarshal(decoded, &record); err != nil {
		return Record{}, false
	}
	if record.Version != CurrentVersion {
		return Record{}, false
	}
	return record, true
}

// Write stores the decision at the current version
func Write(w http.ResponseWriter, accepted bool) error {
	record := Record{Accepted: accepted, Version: CurrentVersion}
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.URLEncoding.EncodeToString(encoded),
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the consent cookie
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
