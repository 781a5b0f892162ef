// Package idp abstracts the identity provider the sign-in flow hands off to.
package idp

import (
	"golang.org/x/oauth2"
)

// Provider builds the redirect that starts a sign-in
type Provider interface {
	// Type identifies the provider in logs and config
	Type() string

	// AuthURL returns the provider's entry point carrying the opaque
	// signed state.
	AuthURL(state string) string
}

// TrialProvider sends the user to the trial identity provider. The token
// comes back on the callback URL directly, so only the authorization
// endpoint half of the OAuth config is exercised.
type TrialProvider struct {
	config oauth2.Config
}

// NewTrialProvider creates the trial identity provider
func NewTrialProvider(authURL, clientID, redirectURL string, scopes []string) *TrialProvider {
	return &TrialProvider{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL: authURL,
			},
		},
	}
}

// Type implements Provider
func (p *TrialProvider) Type() string { return "trial" }

// AuthURL implements Provider
func (p *TrialProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}
