package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTokenExpired is returned by Verify when the envelope's TTL has passed
var ErrTokenExpired = errors.New("token expired")

// ErrInvalidSignature is returned by Verify when the token fails HMAC
// validation or is structurally malformed
var ErrInvalidSignature = errors.New("invalid token signature")

// TokenSigner mints and verifies the signed state that round-trips through
// the identity provider. The payload travels as base64 JSON with an HMAC
// signature appended, so the provider can't read anything it shouldn't
// trust and the callback can't accept anything we didn't mint.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a signer. A zero ttl means tokens never expire.
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// envelope wraps the caller's payload with issue and expiry metadata
type envelope struct {
	Payload   json.RawMessage `json:"p"`
	IssuedAt  time.Time       `json:"iat"`
	ExpiresAt time.Time       `json:"exp,omitempty"`
}

// Sign serializes v into a signed, expiring token of the form
// base64(envelope).signature.
func (ts *TokenSigner) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	env := envelope{
		Payload:  payload,
		IssuedAt: ts.now(),
	}
	if ts.ttl != 0 {
		env.ExpiresAt = env.IssuedAt.Add(ts.ttl)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	signature := SignData(string(body), ts.signingKey)
	return base64.URLEncoding.EncodeToString(body) + "." + signature, nil
}

// Verify checks the signature and expiry, then unmarshals the payload
// into v. Tampered, truncated, and foreign-key tokens all come back as
// ErrInvalidSignature; only a genuine envelope can report expiry.
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, found := strings.Cut(token, ".")
	if !found {
		return ErrInvalidSignature
	}

	body, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrInvalidSignature
	}
	if !ValidateSignedData(string(body), signature, ts.signingKey) {
		return ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	if !env.ExpiresAt.IsZero() && ts.now().After(env.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
