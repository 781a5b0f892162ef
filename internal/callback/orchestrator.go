// Package callback handles the redirect back from the identity provider:
// token delivery, provider error codes, and the no-op case.
package callback

import (
	"context"
	"net/url"

	"github.com/digitalmarketplace/trybuy-front/internal/authstate"
	"github.com/digitalmarketplace/trybuy-front/internal/crypto"
	"github.com/digitalmarketplace/trybuy-front/internal/log"
	"github.com/digitalmarketplace/trybuy-front/internal/returnurl"
	"github.com/digitalmarketplace/trybuy-front/internal/storage"
	"github.com/digitalmarketplace/trybuy-front/internal/token"
)

// Provider error codes from the callback query string
const (
	errAccessDenied   = "access_denied"
	errInvalidRequest = "invalid_request"
	errServerError    = "server_error"
)

// Human-readable messages for provider error codes. These are shown to the
// user verbatim, so they stay non-technical.
var errorMessages = map[string]string{
	errAccessDenied:   "You cancelled the sign in process. You have not been signed in, and no trial has been started.",
	errInvalidRequest: "Something went wrong with your sign in request. Try signing in again.",
	errServerError:    "The sign in service is having problems right now. Try again in a few minutes.",
}

// GenericErrorMessage is used for error codes outside the known vocabulary
const GenericErrorMessage = "Something went wrong while signing you in. Try signing in again."

// AuthorizationState is the signed payload round-tripped through the
// identity provider's state parameter.
type AuthorizationState struct {
	Nonce     string `json:"nonce"`
	ReturnURL string `json:"return_url"`
}

// Outcome is the terminal result of one callback pass: exactly one of
// Redirect or ErrorMessage is set.
type Outcome struct {
	// Redirect is the location to send the browser to. Always free of
	// query parameters and fragments.
	Redirect string

	// ErrorMessage, when non-empty, means the provider reported a failure
	// and an error page should be rendered instead of redirecting.
	ErrorMessage string
}

// Orchestrator runs the callback state machine. One pass per request, no
// retries: whatever happens, the outcome is a full navigation.
type Orchestrator struct {
	sessions    storage.SessionStore
	auth        *authstate.Manager
	returns     *returnurl.Store
	signer      crypto.TokenSigner
	defaultPath string
}

// New creates a callback orchestrator
func New(sessions storage.SessionStore, auth *authstate.Manager, returns *returnurl.Store, signer crypto.TokenSigner, defaultPath string) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		auth:        auth,
		returns:     returns,
		signer:      signer,
		defaultPath: defaultPath,
	}
}

// Handle processes one callback URL for the session.
//
// Branches, in order:
//   - ?error=<code>: park the mapped message in the session and redirect to
//     the cleaned callback URL, so the code never survives in the address
//     bar; nothing else is stored.
//   - tampered/expired/replayed state: treated as a no-op callback.
//   - ?token=<value>: sign in, flag the welcome-back banner, redirect to
//     the resolved return URL.
//   - neither, with a parked error message: consume it and render the
//     error page on the now-clean URL.
//   - neither: clear any pending return URL and go home.
func (o *Orchestrator) Handle(ctx context.Context, sessionID string, u *url.URL) Outcome {
	query := u.Query()

	if code := query.Get("error"); code != "" {
		msg, ok := errorMessages[code]
		if !ok {
			msg = GenericErrorMessage
		}
		log.LogInfoWithFields("callback", "Identity provider reported an error", map[string]any{
			"code": code,
		})
		if err := o.sessions.Set(ctx, sessionID, storage.KeyAuthError, msg); err != nil {
			// Can't park the message for the clean request; render in place
			// rather than lose it.
			log.LogWarnWithFields("callback", "Failed to park sign-in error", map[string]any{
				"error": err.Error(),
			})
			return Outcome{ErrorMessage: msg}
		}
		return Outcome{Redirect: token.CleanURL(u)}
	}

	state, ok := o.verifyState(ctx, sessionID, query.Get("state"))
	if !ok {
		o.returns.Clear(ctx, sessionID)
		return Outcome{Redirect: o.defaultPath}
	}

	tok, ok := token.FromURL(u)
	if !ok {
		if msg, err := o.sessions.Get(ctx, sessionID, storage.KeyAuthError); err == nil {
			if err := o.sessions.Delete(ctx, sessionID, storage.KeyAuthError); err != nil {
				log.LogWarnWithFields("callback", "Failed to consume sign-in error", map[string]any{
					"error": err.Error(),
				})
			}
			return Outcome{ErrorMessage: msg}
		}

		log.LogDebugWithFields("callback", "Callback without token", map[string]any{
			"path": u.Path,
		})
		o.returns.Clear(ctx, sessionID)
		return Outcome{Redirect: o.defaultPath}
	}

	if err := o.auth.For(sessionID).Login(ctx, tok); err != nil {
		// If the token can't be stored the user isn't signed in; sending
		// them home without a banner is the honest outcome.
		log.LogErrorWithFields("callback", "Failed to store token", map[string]any{
			"error": err.Error(),
		})
		o.returns.Clear(ctx, sessionID)
		return Outcome{Redirect: o.defaultPath}
	}

	if err := o.sessions.Set(ctx, sessionID, storage.KeyWelcomeBack, "1"); err != nil {
		log.LogWarnWithFields("callback", "Failed to set welcome-back flag", map[string]any{
			"error": err.Error(),
		})
	}

	destination := o.resolveDestination(ctx, sessionID, state)
	o.returns.Clear(ctx, sessionID)

	log.LogInfoWithFields("callback", "Sign in complete", map[string]any{
		"destination": destination,
	})
	return Outcome{Redirect: destination}
}

// resolveDestination prefers the return URL captured in the session. When
// the session entry is gone (expired mid-flow, or the store lost it) the
// copy signed into the state parameter serves as fallback, subject to the
// same validation.
func (o *Orchestrator) resolveDestination(ctx context.Context, sessionID string, state *AuthorizationState) string {
	if _, err := o.sessions.Get(ctx, sessionID, storage.KeyReturnURL); storage.IsNotFound(err) {
		if state != nil && state.ReturnURL != "" && o.returns.Allowed(state.ReturnURL) {
			return state.ReturnURL
		}
	}
	return o.returns.Resolve(ctx, sessionID)
}

// verifyState checks the signed state parameter against the nonce issued at
// login time. A callback without any state is accepted for providers that
// don't round-trip it; a state that is present but fails verification, or
// whose nonce doesn't match, is rejected. The nonce is consumed either way
// so a captured callback URL can't be replayed.
func (o *Orchestrator) verifyState(ctx context.Context, sessionID, rawState string) (*AuthorizationState, bool) {
	if rawState == "" {
		return nil, true
	}

	var state AuthorizationState
	if err := o.signer.Verify(rawState, &state); err != nil {
		log.LogWarnWithFields("callback", "Rejecting callback state", map[string]any{
			"error": err.Error(),
		})
		return nil, false
	}

	expected, err := o.sessions.Get(ctx, sessionID, storage.KeyLoginNonce)
	if err != nil {
		log.LogWarnWithFields("callback", "No login nonce for callback state", map[string]any{
			"error": err.Error(),
		})
		return nil, false
	}
	defer func() {
		if err := o.sessions.Delete(ctx, sessionID, storage.KeyLoginNonce); err != nil {
			log.LogWarnWithFields("callback", "Failed to consume login nonce", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	if state.Nonce != expected {
		log.LogWarnWithFields("callback", "Callback state nonce mismatch", nil)
		return nil, false
	}
	return &state, true
}
