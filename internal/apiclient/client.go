// Package apiclient wraps calls to the trial API: bearer injection from
// the session, 401-driven re-authentication, and request de-duplication.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/digitalmarketplace/trybuy-front/internal/log"
)

// DefaultTimeout bounds every trial-API call
const DefaultTimeout = 10 * time.Second

// ErrReauthRequired signals that the trial API rejected the session's token.
// The token has already been invalidated when this is returned; the HTTP
// layer turns it into a redirect to the sign-in entry point.
var ErrReauthRequired = errors.New("re-authentication required")

// TokenSource supplies the session's bearer token and accepts invalidation
// when the API rejects it. authstate.Broadcaster satisfies this.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
	Invalidate(ctx context.Context)
}

// Kind classifies call failures into the buckets the UI knows how to
// explain.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindNetwork   Kind = "network"
	KindForbidden Kind = "forbidden"
	KindNotFound  Kind = "not_found"
	KindServer    Kind = "server"
)

// userMessages holds the non-technical explanation for each failure kind
var userMessages = map[Kind]string{
	KindTimeout:   "The service is taking too long to respond. Try again in a moment.",
	KindNetwork:   "We could not reach the service. Try again in a moment.",
	KindForbidden: "Your account does not have access to this trial.",
	KindNotFound:  "We could not find what you were looking for.",
	KindServer:    "The service is having problems right now. Try again later.",
}

// Error is a classified trial-API failure
type Error struct {
	Kind       Kind
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("trial api: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("trial api: %s (status %d)", e.Kind, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the text safe to show to the user
func (e *Error) UserMessage() string {
	return userMessages[e.Kind]
}

// Client is the trial-API client. It is shared across sessions; the
// session's token source is supplied per call.
type Client struct {
	http  *resty.Client
	group *singleflight.Group
}

// NewClient creates a client for the trial API
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:  httpClient,
		group: &singleflight.Group{},
	}
}

type callOptions struct {
	withoutReauth bool
}

// Option adjusts a single call
type Option func(*callOptions)

// WithoutReauth disables the 401 handling for one call: the caller gets
// the raw response and the stored token is left alone. Used by status
// checks that must not bounce the user to sign-in.
func WithoutReauth() Option {
	return func(o *callOptions) {
		o.withoutReauth = true
	}
}

// Get issues a GET to path (relative to the base URL)
func (c *Client) Get(ctx context.Context, tokens TokenSource, path string, opts ...Option) (*resty.Response, error) {
	return c.do(ctx, tokens, http.MethodGet, path, nil, opts...)
}

// Post issues a POST with a JSON body
func (c *Client) Post(ctx context.Context, tokens TokenSource, path string, body any, opts ...Option) (*resty.Response, error) {
	return c.do(ctx, tokens, http.MethodPost, path, body, opts...)
}

func (c *Client) do(ctx context.Context, tokens TokenSource, method, path string, body any, opts ...Option) (*resty.Response, error) {
	options := callOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	// Never send an empty or placeholder credential: absent token means
	// absent header.
	if tok, ok := tokens.Token(ctx); ok {
		req.SetAuthToken(tok)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		if options.withoutReauth {
			return resp, nil
		}
		log.LogInfoWithFields("apiclient", "Token rejected, forcing re-authentication", map[string]any{
			"path": path,
		})
		tokens.Invalidate(ctx)
		return resp, fmt.Errorf("%s %s: %w", method, path, ErrReauthRequired)
	}

	if apiErr := classifyStatus(resp.StatusCode()); apiErr != nil {
		return resp, apiErr
	}
	return resp, nil
}

// Deduplicate runs fn, sharing one execution between concurrent callers
// that use the same key. The result is handed to every waiter.
func (c *Client) Deduplicate(key string, fn func() (any, error)) (any, error) {
	v, err, shared := c.group.Do(key, fn)
	if shared {
		log.LogTraceWithFields("apiclient", "Shared in-flight call", map[string]any{
			"key": key,
		})
	}
	return v, err
}

func classifyTransport(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, cause: err}
	}
	return &Error{Kind: KindNetwork, cause: err}
}

func classifyStatus(code int) *Error {
	switch {
	case code == http.StatusForbidden:
		return &Error{Kind: KindForbidden, StatusCode: code}
	case code == http.StatusNotFound:
		return &Error{Kind: KindNotFound, StatusCode: code}
	case code >= 500:
		return &Error{Kind: KindServer, StatusCode: code}
	default:
		return nil
	}
}
