package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/digitalmarketplace/trybuy-front/internal/apiclient"
	"github.com/digitalmarketplace/trybuy-front/internal/authstate"
	"github.com/digitalmarketplace/trybuy-front/internal/callback"
	"github.com/digitalmarketplace/trybuy-front/internal/config"
	"github.com/digitalmarketplace/trybuy-front/internal/consent"
	"github.com/digitalmarketplace/trybuy-front/internal/crypto"
	"github.com/digitalmarketplace/trybuy-front/internal/idp"
	jsonwriter "github.com/digitalmarketplace/trybuy-front/internal/json"
	"github.com/digitalmarketplace/trybuy-front/internal/log"
	"github.com/digitalmarketplace/trybuy-front/internal/returnurl"
	"github.com/digitalmarketplace/trybuy-front/internal/session"
	"github.com/digitalmarketplace/trybuy-front/internal/storage"
)

// Handlers carries the wired dependencies for the try-before-you-buy
// endpoints.
type Handlers struct {
	cfg      *config.Config
	sessions storage.SessionStore
	auth     *authstate.Manager
	returns  *returnurl.Store
	orch     *callback.Orchestrator
	signer   crypto.TokenSigner
	provider idp.Provider
	api      *apiclient.Client
}

// NewHandlers creates the handler set
func NewHandlers(
	cfg *config.Config,
	sessions storage.SessionStore,
	auth *authstate.Manager,
	returns *returnurl.Store,
	orch *callback.Orchestrator,
	signer crypto.TokenSigner,
	provider idp.Provider,
	api *apiclient.Client,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		sessions: sessions,
		auth:     auth,
		returns:  returns,
		orch:     orch,
		signer:   signer,
		provider: provider,
		api:      api,
	}
}

// LoginHandler starts a sign-in: captures where the user came from, issues
// a nonce, and redirects to the identity provider with a signed state.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.Ensure(w, r)

	returnTo := h.captureReturn(r)
	if returnTo != "" {
		if u, err := url.Parse(returnTo); err == nil {
			h.returns.Capture(ctx, sessionID, u)
		}
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogErrorWithFields("server", "Failed to generate login nonce", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start sign in")
		return
	}
	if err := h.sessions.Set(ctx, sessionID, storage.KeyLoginNonce, nonce); err != nil {
		log.LogErrorWithFields("server", "Failed to store login nonce", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start sign in")
		return
	}

	state, err := h.signer.Sign(callback.AuthorizationState{
		Nonce:     nonce,
		ReturnURL: returnTo,
	})
	if err != nil {
		log.LogErrorWithFields("server", "Failed to sign authorization state", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start sign in")
		return
	}

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// captureReturn picks the destination to come back to after sign-in: the
// explicit return parameter when valid, else the referring page's path.
func (h *Handlers) captureReturn(r *http.Request) string {
	if candidate := r.URL.Query().Get("return"); returnurl.ValidPath(candidate) {
		return candidate
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil && returnurl.ValidPath(u.RequestURI()) {
			return u.RequestURI()
		}
	}
	return ""
}

// CallbackHandler receives the identity provider's redirect. Whatever the
// outcome, the response never echoes the incoming query string: either a
// clean redirect or an error page.
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := session.Ensure(w, r)

	outcome := h.orch.Handle(r.Context(), sessionID, r.URL)
	if outcome.ErrorMessage != "" {
		h.renderErrorPage(w, outcome.ErrorMessage)
		return
	}
	http.Redirect(w, r, outcome.Redirect, http.StatusFound)
}

// LogoutHandler ends the trial session and sends the user home
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sessionID, ok := session.FromRequest(r); ok {
		h.auth.For(sessionID).Logout(ctx)
		if err := h.sessions.DeleteSession(ctx, sessionID); err != nil {
			log.LogWarnWithFields("server", "Failed to delete session", map[string]any{
				"error": err.Error(),
			})
		}
		h.auth.Forget(sessionID)
	}
	session.Clear(w)

	http.Redirect(w, r, h.cfg.Front.DefaultPath, http.StatusFound)
}

// statusResponse is the catalogue site's view of the session
type statusResponse struct {
	Authenticated bool `json:"authenticated"`
	WelcomeBack   bool `json:"welcomeBack"`
}

// StatusHandler reports whether the session is signed in. The welcome-back
// flag is read-once: reporting it consumes it.
//
// The trial API is consulted through the de-duplication layer with reauth
// disabled, so a dead token downgrades the answer without bouncing the
// caller to sign-in.
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.Ensure(w, r)
	broadcaster := h.auth.For(sessionID)

	authenticated := broadcaster.IsAuthenticated(ctx)

	if authenticated && h.cfg.API.StatusPath != "" {
		result, err := h.api.Deduplicate("status:"+sessionID, func() (any, error) {
			resp, err := h.api.Get(ctx, broadcaster, h.cfg.API.StatusPath, apiclient.WithoutReauth())
			if err != nil {
				return nil, err
			}
			return resp.StatusCode(), nil
		})
		if err != nil {
			// Network trouble is not proof the token is dead; report the
			// local view.
			log.LogWarnWithFields("server", "Status check against trial API failed", map[string]any{
				"error": err.Error(),
			})
		} else if code, ok := result.(int); ok && code == http.StatusUnauthorized {
			authenticated = false
		}
	}

	welcomeBack := false
	if _, err := h.sessions.Get(ctx, sessionID, storage.KeyWelcomeBack); err == nil {
		welcomeBack = true
		if err := h.sessions.Delete(ctx, sessionID, storage.KeyWelcomeBack); err != nil {
			log.LogWarnWithFields("server", "Failed to consume welcome-back flag", map[string]any{
				"error": err.Error(),
			})
		}
	}

	jsonwriter.WriteResponse(w, http.StatusOK, statusResponse{
		Authenticated: authenticated,
		WelcomeBack:   welcomeBack,
	})
}

// ProfileHandler fetches the user's trial profile from the trial API. A
// rejected token funnels through token-clear plus a redirect into sign-in.
func (h *Handlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.Ensure(w, r)
	broadcaster := h.auth.For(sessionID)

	if !broadcaster.IsAuthenticated(ctx) {
		h.redirectToLogin(w, r)
		return
	}

	resp, err := h.api.Get(ctx, broadcaster, h.cfg.API.ProfilePath)
	if err != nil {
		if errors.Is(err, apiclient.ErrReauthRequired) {
			h.redirectToLogin(w, r)
			return
		}
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) {
			jsonwriter.WriteError(w, http.StatusBadGateway, "api_error", apiErr.UserMessage())
			return
		}
		jsonwriter.WriteInternalServerError(w, "Something went wrong")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body())
}

// redirectToLogin points the browser back into the sign-in flow, keeping
// the page the user was on as the return destination.
func (h *Handlers) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	login := "/try/login"
	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil && returnurl.ValidPath(u.RequestURI()) {
			login += "?return=" + url.QueryEscape(u.RequestURI())
		}
	}
	http.Redirect(w, r, login, http.StatusFound)
}

// consentResponse mirrors the stored consent record
type consentResponse struct {
	Asked    bool `json:"asked"`
	Accepted bool `json:"accepted"`
}

// ConsentHandler reads (GET), records (POST), or withdraws (DELETE) the
// cookie consent choice. Withdrawal drops the cookie entirely, putting the
// user back in the "not yet asked" state.
func (h *Handlers) ConsentHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		record, ok := consent.FromRequest(r)
		jsonwriter.WriteResponse(w, http.StatusOK, consentResponse{
			Asked:    ok,
			Accepted: record.Accepted,
		})
	case http.MethodDelete:
		consent.Clear(w)
		jsonwriter.WriteResponse(w, http.StatusOK, consentResponse{
			Asked:    false,
			Accepted: false,
		})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			jsonwriter.WriteBadRequest(w, "Bad request")
			return
		}
		accepted := r.FormValue("accepted") == "true"
		if err := consent.Write(w, accepted); err != nil {
			jsonwriter.WriteInternalServerError(w, "Failed to record consent")
			return
		}
		jsonwriter.WriteResponse(w, http.StatusOK, consentResponse{
			Asked:    true,
			Accepted: accepted,
		})
	default:
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// AdminLoggingHandler reads (GET) or changes (POST) the runtime log level
func (h *Handlers) AdminLoggingHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonwriter.WriteResponse(w, http.StatusOK, map[string]string{
			"level": log.GetLogLevel(),
		})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			jsonwriter.WriteBadRequest(w, "Bad request")
			return
		}
		level := r.FormValue("log_level")
		if level == "" {
			jsonwriter.WriteBadRequest(w, "Missing log_level")
			return
		}
		if err := log.SetLogLevel(level); err != nil {
			jsonwriter.WriteBadRequest(w, err.Error())
			return
		}
		log.LogInfoWithFields("admin", "Log level changed by admin", map[string]any{
			"new_level": level,
		})
		jsonwriter.WriteResponse(w, http.StatusOK, map[string]string{
			"level": log.GetLogLevel(),
		})
	default:
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (h *Handlers) renderErrorPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := errorPageTemplate.Execute(w, ErrorPageData{
		Message:  message,
		HomePath: h.cfg.Front.DefaultPath,
	}); err != nil {
		log.LogErrorWithFields("server", "Failed to render error page", map[string]any{
			"error": err.Error(),
		})
	}
}
