package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nextest/portal-auth/internal/http/response"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
)

type sessionContextKey struct{}

func WithSession(ctx context.Context, grant *service.SessionGrant) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, grant)
}

func SessionFromContext(ctx context.Context) (*service.SessionGrant, bool) {
	grant, ok := ctx.Value(sessionContextKey{}).(*service.SessionGrant)
	return grant, ok && grant != nil
}

// LoadSession resolves the session cookie, refreshes it (sliding expiry) and
// stores the grant in the request context. Missing or stale cookies leave the
// request anonymous and clear the cookie; a failing session store aborts the
// request with its error.
func LoadSession(sessions service.SessionManager, cookies *security.CookieManager, debugErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.Read(r)
			if token == "" {
				observability.RecordMiddlewareEvent(r.Context(), "session", "absent")
				next.ServeHTTP(w, r)
				return
			}
			grant, err := sessions.Resolve(r.Context(), token)
			if errors.Is(err, service.ErrNotAuthenticated) {
				observability.RecordMiddlewareEvent(r.Context(), "session", "stale")
				cookies.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				observability.RecordMiddlewareEvent(r.Context(), "session", "error")
				response.Fail(w, r, err, debugErrors)
				return
			}
			observability.RecordMiddlewareEvent(r.Context(), "session", "loaded")
			cookies.SetSession(w, grant.Token, grant.ExpiresAt())
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), grant)))
		})
	}
}

func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			response.Fail(w, r, service.ErrNotAuthenticated, false)
			return
		}
		next.ServeHTTP(w, r)
	})
}
