package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authlife"
	"github.com/MrEthical07/authlife/jwt"
)

type authResultContextKey struct{}

// AuthResult is attached to the request context of guarded handlers.
type AuthResult struct {
	// Claims is nil for requests authenticated by session token.
	Claims  *jwt.AccessClaims
	Session *authlife.Session
}

func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return res, ok
}

// Guard authenticates requests carrying "Authorization: Bearer <access
// token>". The token's sid must name a live session owned by the token's
// subject. Activity is recorded on every request and, when extend is set,
// the session expiry is extended within the absolute cap.
func Guard(engine *authlife.Engine, extend bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}
			claims, err := engine.Tokens().Parse(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := requestContext(r)
			sess, err := engine.Sessions().UpdateActivity(ctx, claims.SID, extend)
			if err != nil {
				fail(w, err)
				return
			}
			if sess.UserID != claims.UID {
				unauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, &AuthResult{Claims: claims, Session: sess})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMFA must run inside a guard. It answers 403 for sessions that have
// not completed MFA verification.
func RequireMFA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok || res.Session == nil {
			unauthorized(w)
			return
		}
		if !res.Session.MFAVerified {
			http.Error(w, "mfa required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = authlife.WithClientIP(ctx, host)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = authlife.WithUserAgent(ctx, ua)
	}
	return ctx
}

func fail(w http.ResponseWriter, err error) {
	if errors.Is(err, authlife.ErrSessionPersistence) {
		http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
		return
	}
	unauthorized(w)
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
