package consent

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCookies(t *testing.T, recorder *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range recorder.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestWriteAndRead(t *testing.T) {
	recorder := httptest.NewRecorder()
	require.NoError(t, Write(recorder, true))

	record, ok := FromRequest(requestWithCookies(t, recorder))
	require.True(t, ok)
	assert.True(t, record.Accepted)
	assert.Equal(t, CurrentVersion, record.Version)
}

func TestWriteRejection(t *testing.T) {
	recorder := httptest.NewRecorder()
	require.NoError(t, Write(recorder, false))

	record, ok := FromRequest(requestWithCookies(t, recorder))
	require.True(t, ok)
	assert.False(t, record.Accepted)
}

func TestMissingCookieCountsAsUnset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := FromRequest(r)
	assert.False(t, ok)
}

func TestGarbageCookieCountsAsUnset(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", base64.URLEncoding.EncodeToString([]byte("not json"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: CookieName, Value: tt.value})
			_, ok := FromRequest(r)
			assert.False(t, ok)
		})
	}
}

func TestStaleVersionCountsAsUnset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	stale := base64.URLEncoding.EncodeToString([]byte(`{"accepted":true,"version":0}`))
	r.AddCookie(&http.Cookie{Name: CookieName, Value: stale})

	_, ok := FromRequest(r)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	recorder := httptest.NewRecorder()
	Clear(recorder)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
