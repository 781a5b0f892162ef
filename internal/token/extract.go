// Package token reads trial bearer tokens out of callback URLs and decides
// whether a stored token still counts as valid.
package token

import (
	"net/url"
	"strings"
)

// Param is the query parameter the identity provider delivers the token in.
//
// The provider's hardening notes describe a fragment-based variant, but a
// server-side front never sees fragments, so the query parameter is the
// only convention that can apply here.
const Param = "token"

// FromURL extracts the bearer token from a callback URL. Whitespace-only
// values are treated as absent.
func FromURL(u *url.URL) (string, bool) {
	raw := u.Query().Get(Param)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// CleanURL returns the URL with the entire query and fragment stripped, so
// the credential never survives in redirects, history, or access logs.
func CleanURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	clean.RawFragment = ""
	if clean.Path == "" {
		clean.Path = "/"
	}
	return clean.String()
}
