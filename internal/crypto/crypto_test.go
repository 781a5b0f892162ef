package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	first, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSignAndValidateData(t *testing.T) {
	key := []byte("test-signing-key")

	signature := SignData("payload", key)
	assert.True(t, ValidateSignedData("payload", signature, key))
	assert.False(t, ValidateSignedData("tampered", signature, key))
	assert.False(t, ValidateSignedData("payload", signature, []byte("other-key")))
	assert.False(t, ValidateSignedData("payload", "not-a-signature", key))
}

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute)

	type payload struct {
		Nonce     string `json:"nonce"`
		ReturnURL string `json:"return_url"`
	}

	token, err := signer.Sign(payload{Nonce: "n-1", ReturnURL: "/catalogue/"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, signer.Verify(token, &got))
	assert.Equal(t, "n-1", got.Nonce)
	assert.Equal(t, "/catalogue/", got.ReturnURL)
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute)

	token, err := signer.Sign(map[string]string{"nonce": "n-1"})
	require.NoError(t, err)

	var out map[string]string
	assert.ErrorIs(t, signer.Verify(token+"x", &out), ErrInvalidSignature)
	assert.ErrorIs(t, signer.Verify("garbage", &out), ErrInvalidSignature)

	other := NewTokenSigner([]byte("ffffffffffffffffffffffffffffffff"), time.Minute)
	assert.ErrorIs(t, other.Verify(token, &out), ErrInvalidSignature)
}

func TestTokenSignerExpiry(t *testing.T) {
	signer := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), -time.Second)

	token, err := signer.Sign(map[string]string{"nonce": "n-1"})
	require.NoError(t, err)

	var out map[string]string
	err = signer.Verify(token, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
