package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired is returned when a token carries an expiry claim in the past
var ErrExpired = errors.New("token expired")

// Validator decides whether a stored token still counts as valid.
// Implementations must not perform network I/O: validation happens on
// every authentication-state read.
type Validator interface {
	Validate(token string) error
}

// ExpiryValidator inspects three-part dot-delimited tokens for an expiry
// claim. The signature is NOT verified: the trial API is the authority on
// token validity, this check only clears tokens that are certainly dead so
// the user is sent back to sign-in before a doomed API call.
//
// Tokens that don't decode as JWTs pass: opaque tokens carry no local
// expiry and are accepted until the API says otherwise.
type ExpiryValidator struct {
	// Grace widens the expiry window to absorb clock skew between the
	// identity provider and this service.
	Grace time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Validate implements Validator
func (v ExpiryValidator) Validate(token string) error {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if now().After(exp.Time.Add(v.Grace)) {
		return ErrExpired
	}
	return nil
}
