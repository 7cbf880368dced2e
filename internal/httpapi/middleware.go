// Package httpapi implements the HTTP surface of spec.md §4.8: the
// auth-cookie middleware and the request handlers for the orchestrator's
// small set of routes. Grounded on the teacher's internal/api router
// (gorilla/mux, middleware chain via router.Use).
package httpapi

import (
	"context"
	"net/http"

	"github.com/mronstro/rondb-tools/internal/coordinator"
)

type ctxKey int

const tokenCtxKey ctxKey = iota

// cookieName is the name of the session-identifying cookie (spec.md §4.8).
const cookieName = "X-AUTH"

// AuthCookieMiddleware implements spec.md §4.8 step 1 and the cookie half of
// step 6: it resolves the request's token (existing cookie, freshly
// generated, or the cluster operator's reserved key via /try?key=), stashes
// it in the request context for handlers, and attaches a Set-Cookie header
// when a new token was minted. The lock-acquisition half of steps 2-6 lives
// in the coordinator methods the handlers call, since Go's non-reentrant
// mutexes make acquiring here and again in the handler redundant rather than
// layered.
func AuthCookieMiddleware(clusterSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, isNew, err := resolveToken(r, clusterSecret)
			if err != nil {
				writeError(w, err)
				return
			}
			if isNew {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := context.WithValue(r.Context(), tokenCtxKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveToken implements spec.md §4.8 step 1, plus the operator bootstrap
// route: `/try?key=<cluster secret>` mints a cookie carrying the secret
// itself rather than a generated token (spec.md §9 glossary, static vs
// dynamic tokens).
func resolveToken(r *http.Request, clusterSecret string) (token string, isNew bool, err error) {
	if clusterSecret != "" && r.URL.Path == "/try" {
		if key := r.URL.Query().Get("key"); key != "" && key == clusterSecret {
			return key, true, nil
		}
	}

	if cookie, cerr := r.Cookie(cookieName); cerr == nil {
		if cookie.Value == clusterSecret || coordinator.ValidToken(cookie.Value) {
			return cookie.Value, false, nil
		}
	}

	fresh, genErr := coordinator.GenerateToken()
	if genErr != nil {
		return "", false, genErr
	}
	return fresh, true, nil
}

// TokenFromContext returns the token AuthCookieMiddleware resolved for this
// request.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenCtxKey).(string)
	return token
}
