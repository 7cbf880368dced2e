package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mronstro/rondb-tools/internal/coordinator"
)

func passthrough(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Token", TokenFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthCookieMiddleware_GeneratesTokenWhenCookieMissing(t *testing.T) {
	mw := AuthCookieMiddleware("cluster-secret")
	req := httptest.NewRequest(http.MethodGet, "/viewmodel", nil)
	rec := httptest.NewRecorder()

	mw(passthrough(t)).ServeHTTP(rec, req)

	resp := rec.Result()
	require.Len(t, resp.Cookies(), 1)
	cookie := resp.Cookies()[0]
	assert.Equal(t, cookieName, cookie.Name)
	assert.True(t, coordinator.ValidToken(cookie.Value))
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, cookie.Value, rec.Header().Get("X-Seen-Token"))
}

func TestAuthCookieMiddleware_GeneratesTokenWhenCookieMalformed(t *testing.T) {
	mw := AuthCookieMiddleware("cluster-secret")
	req := httptest.NewRequest(http.MethodGet, "/viewmodel", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "not-20-hex-chars"})
	rec := httptest.NewRecorder()

	mw(passthrough(t)).ServeHTTP(rec, req)

	require.Len(t, rec.Result().Cookies(), 1)
	newToken := rec.Result().Cookies()[0].Value
	assert.NotEqual(t, "not-20-hex-chars", newToken)
	assert.True(t, coordinator.ValidToken(newToken))
}

func TestAuthCookieMiddleware_ReusesWellFormedCookie(t *testing.T) {
	mw := AuthCookieMiddleware("cluster-secret")
	existing := "0123456789abcdef0123"
	req := httptest.NewRequest(http.MethodGet, "/viewmodel", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: existing})
	rec := httptest.NewRecorder()

	mw(passthrough(t)).ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, existing, rec.Header().Get("X-Seen-Token"))
}

func TestAuthCookieMiddleware_TryWithMatchingKeyMintsClusterSecretCookie(t *testing.T) {
	mw := AuthCookieMiddleware("cluster-secret")
	req := httptest.NewRequest(http.MethodGet, "/try?key=cluster-secret", nil)
	rec := httptest.NewRecorder()

	mw(passthrough(t)).ServeHTTP(rec, req)

	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "cluster-secret", rec.Result().Cookies()[0].Value)
}

func TestAuthCookieMiddleware_TryWithWrongKeyFallsBackToGeneratedToken(t *testing.T) {
	mw := AuthCookieMiddleware("cluster-secret")
	req := httptest.NewRequest(http.MethodGet, "/try?key=wrong", nil)
	rec := httptest.NewRecorder()

	mw(passthrough(t)).ServeHTTP(rec, req)

	require.Len(t, rec.Result().Cookies(), 1)
	assert.True(t, coordinator.ValidToken(rec.Result().Cookies()[0].Value))
}
