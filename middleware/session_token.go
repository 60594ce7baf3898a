package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authlife"
)

const (
	// DefaultSessionCookie is read by SessionTokenGuard when cookie is "".
	DefaultSessionCookie = "session"
	// SessionTokenHeader is consulted when the cookie is absent.
	SessionTokenHeader = "X-Session-Token"
)

// SessionTokenGuard authenticates requests by opaque session token, taken
// from the named cookie or the X-Session-Token header.
func SessionTokenGuard(engine *authlife.Engine, cookie string, extend bool) func(http.Handler) http.Handler {
	if cookie == "" {
		cookie = DefaultSessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token := r.Header.Get(SessionTokenHeader)
			if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
				token = c.Value
			}
			if token == "" {
				unauthorized(w)
				return
			}

			ctx := requestContext(r)
			sm := engine.Sessions()
			sess, err := sm.GetSessionByToken(ctx, token)
			if err != nil {
				fail(w, err)
				return
			}
			if sess, err = sm.UpdateActivity(ctx, sess.ID, extend); err != nil {
				fail(w, err)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, &AuthResult{Session: sess})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
