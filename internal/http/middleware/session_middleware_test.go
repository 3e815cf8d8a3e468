package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
	svcgomock "github.com/nextest/portal-auth/internal/service/gomock"
)

func sessionChain(sessions service.SessionManager, cookies *security.CookieManager) http.Handler {
	return LoadSession(sessions, cookies, false)(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant, _ := SessionFromContext(r.Context())
		_, _ = w.Write([]byte(grant.Session.UserID))
	})))
}

func TestLoadSessionResolvesAndRefreshesCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := svcgomock.NewMockSessionManager(ctrl)
	cookies := security.NewCookieManager("portal_session", "", false, "lax")
	expires := time.Now().Add(24 * time.Hour)
	sessions.EXPECT().Resolve(gomock.Any(), "old-token").Return(&service.SessionGrant{
		Session: domain.Session{ID: "s-1", UserID: "u-1", ExpiresAt: expires},
		Token:   "new-token",
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "old-token"})
	rr := httptest.NewRecorder()
	sessionChain(sessions, cookies).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "u-1" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	set := rr.Header().Get("Set-Cookie")
	if !strings.Contains(set, "portal_session=new-token") || !strings.Contains(set, "HttpOnly") {
		t.Fatalf("expected refreshed http-only cookie, got %q", set)
	}
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := svcgomock.NewMockSessionManager(ctrl)
	cookies := security.NewCookieManager("portal_session", "", false, "lax")

	rr := httptest.NewRecorder()
	sessionChain(sessions, cookies).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"NOT_AUTHENTICATED"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestLoadSessionClearsStaleCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := svcgomock.NewMockSessionManager(ctrl)
	cookies := security.NewCookieManager("portal_session", "", false, "lax")
	sessions.EXPECT().Resolve(gomock.Any(), "stale").Return(nil, service.ErrNotAuthenticated)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "stale"})
	rr := httptest.NewRecorder()
	sessionChain(sessions, cookies).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected cookie to be cleared, got %q", rr.Header().Get("Set-Cookie"))
	}
}

func TestLoadSessionStoreOutageIs503(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := svcgomock.NewMockSessionManager(ctrl)
	cookies := security.NewCookieManager("portal_session", "", false, "lax")
	sessions.EXPECT().Resolve(gomock.Any(), "tok").Return(nil, apperr.Unavailable("Session store unavailable", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "tok"})
	rr := httptest.NewRecorder()
	sessionChain(sessions, cookies).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
