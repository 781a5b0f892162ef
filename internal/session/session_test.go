package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMintsSession(t *testing.T) {
	recorder := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	id := Ensure(recorder, r)
	assert.NotEmpty(t, id)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestEnsureReusesExistingSession(t *testing.T) {
	recorder := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "existing"})

	id := Ensure(recorder, r)
	assert.Equal(t, "existing", id)
	assert.Empty(t, recorder.Result().Cookies(), "no new cookie should be set")
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := FromRequest(r)
	assert.False(t, ok)

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "s1"})
	id, ok := FromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "s1", id)
}

func TestClear(t *testing.T) {
	recorder := httptest.NewRecorder()
	Clear(recorder)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}
