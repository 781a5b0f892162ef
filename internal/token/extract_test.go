package token

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromURL(t *testing.T) {
	tests := []struct {
		name      string
		rawURL    string
		wantToken string
		wantOK    bool
	}{
		{
			name:      "token present",
			rawURL:    "https://try.example/?token=abc.def.ghi",
			wantToken: "abc.def.ghi",
			wantOK:    true,
		},
		{
			name:   "token absent",
			rawURL: "https://try.example/",
			wantOK: false,
		},
		{
			name:   "token empty",
			rawURL: "https://try.example/?token=",
			wantOK: false,
		},
		{
			name:   "token whitespace only",
			rawURL: "https://try.example/?token=%20%20",
			wantOK: false,
		},
		{
			name:      "token with surrounding whitespace",
			rawURL:    "https://try.example/?token=%20abc%20",
			wantToken: "abc",
			wantOK:    true,
		},
		{
			name:      "token among other parameters",
			rawURL:    "https://try.example/?foo=bar&token=xyz",
			wantToken: "xyz",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			require.NoError(t, err)

			got, ok := FromURL(u)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, got)
		})
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{
			name:   "strips token parameter",
			rawURL: "https://try.example/callback?token=secret",
			want:   "https://try.example/callback",
		},
		{
			name:   "strips all query parameters",
			rawURL: "https://try.example/callback?token=secret&foo=bar",
			want:   "https://try.example/callback",
		},
		{
			name:   "strips fragment",
			rawURL: "https://try.example/callback?token=secret#token=also-secret",
			want:   "https://try.example/callback",
		},
		{
			name:   "defaults empty path to root",
			rawURL: "https://try.example?token=secret",
			want:   "https://try.example/",
		},
		{
			name:   "leaves clean URL alone",
			rawURL: "https://try.example/catalogue/",
			want:   "https://try.example/catalogue/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, CleanURL(u))
		})
	}
}
