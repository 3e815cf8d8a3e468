package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/http/middleware"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
	svcgomock "github.com/nextest/portal-auth/internal/service/gomock"
)

type authFixture struct {
	login    *svcgomock.MockLoginServiceInterface
	sessions *svcgomock.MockSessionManager
	handler  *AuthHandler
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &authFixture{
		login:    svcgomock.NewMockLoginServiceInterface(ctrl),
		sessions: svcgomock.NewMockSessionManager(ctrl),
	}
	cookies := security.NewCookieManager("portal_session", "", false, "lax")
	f.handler = NewAuthHandler(f.login, f.sessions, cookies, true)
	return f
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	expires := time.Date(2026, 3, 2, 12, 10, 0, 0, time.UTC)
	f.login.EXPECT().RequestCode(gomock.Any(), service.RequestCodeInput{Email: "ana@nextest.com.br"}).
		Return(&service.IssueResult{Email: "ana@nextest.com.br", ExpiresAt: expires}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ana@nextest.com.br"}`))
	f.handler.Login(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["message"] != "Verification code sent" || body["email"] != "ana@nextest.com.br" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if _, ok := body["debugCode"]; ok {
		t.Fatalf("debug code must be omitted when empty: %+v", body)
	}
}

func TestLoginDeliveryWarningAndDebugCode(t *testing.T) {
	f := newAuthFixture(t)
	f.login.EXPECT().RequestCode(gomock.Any(), gomock.Any()).Return(&service.IssueResult{
		Email:     "ana@nextest.com.br",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		Warning:   &service.DeliveryWarning{Transport: "smtp", Err: errors.New("dial tcp: refused")},
		DebugCode: "004217",
	}, nil)

	rr := httptest.NewRecorder()
	f.handler.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ana@nextest.com.br"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("delivery failure must not fail issuance, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["debugCode"] != "004217" || body["warning"] == nil {
		t.Fatalf("expected warning and debug code, got %+v", body)
	}
	if strings.Contains(rr.Body.String(), "refused") {
		t.Fatalf("transport error leaked: %s", rr.Body.String())
	}
}

func TestLoginErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"wrong domain", service.ErrEmailDomain, http.StatusBadRequest},
		{"missing email", service.ErrEmailRequired, http.StatusBadRequest},
		{"unknown user", service.ErrUserNotFound.With("email", "x@nextest.com.br"), http.StatusNotFound},
		{"disabled", service.ErrAccountDisabled, http.StatusUnauthorized},
		{"db down", apperr.Unavailable("Database unavailable", context.DeadlineExceeded), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)
			f.login.EXPECT().RequestCode(gomock.Any(), gomock.Any()).Return(nil, tc.err)
			rr := httptest.NewRecorder()
			f.handler.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@nextest.com.br"}`)))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestLoginRejectsMalformedJSON(t *testing.T) {
	f := newAuthFixture(t)
	rr := httptest.NewRecorder()
	f.handler.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":`)))
	if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	f := newAuthFixture(t)
	rr := httptest.NewRecorder()
	body := `{"email":"ana@nextest.com.br","admin":true}`
	f.handler.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))
	if rr.Code != http.StatusBadRequest || decode(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestVerifySetsSessionCookie(t *testing.T) {
	f := newAuthFixture(t)
	user := &domain.User{ID: "u-1", Email: "ana@nextest.com.br", Name: "Ana", Active: true}
	f.login.EXPECT().VerifyCode(gomock.Any(), service.VerifyCodeInput{Email: "ana@nextest.com.br", Code: "004217", ClientIP: "192.0.2.1"}).
		Return(&service.VerifyResult{
			User: user,
			Session: &service.SessionGrant{
				Session: domain.Session{ID: "s-1", UserID: "u-1", ExpiresAt: time.Now().Add(24 * time.Hour)},
				Token:   "signed-token",
			},
		}, nil)

	rr := httptest.NewRecorder()
	f.handler.Verify(rr, httptest.NewRequest(http.MethodPost, "/api/auth/verify", strings.NewReader(`{"email":"ana@nextest.com.br","code":"004217"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if set := rr.Header().Get("Set-Cookie"); !strings.Contains(set, "portal_session=signed-token") || !strings.Contains(set, "HttpOnly") {
		t.Fatalf("expected session cookie, got %q", set)
	}
	body := decode(t, rr)
	u, _ := body["user"].(map[string]any)
	if u["id"] != "u-1" {
		t.Fatalf("unexpected user payload: %+v", body)
	}
	if _, ok := u["passwordHash"]; ok {
		t.Fatal("password hash must never be serialized")
	}
}

func TestVerifyInvalidCodeIs400AndRateLimitIs429(t *testing.T) {
	f := newAuthFixture(t)
	f.login.EXPECT().VerifyCode(gomock.Any(), gomock.Any()).Return(nil, service.ErrInvalidCode)
	rr := httptest.NewRecorder()
	f.handler.Verify(rr, httptest.NewRequest(http.MethodPost, "/api/auth/verify", strings.NewReader(`{"email":"a@nextest.com.br","code":"000000"}`)))
	if rr.Code != http.StatusBadRequest || decode(t, rr)["message"] != "Invalid or expired code" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}

	f.login.EXPECT().VerifyCode(gomock.Any(), gomock.Any()).Return(nil, service.ErrTooManyAttempts.With("retryAfter", 30))
	rr = httptest.NewRecorder()
	f.handler.Verify(rr, httptest.NewRequest(http.MethodPost, "/api/auth/verify", strings.NewReader(`{"email":"a@nextest.com.br","code":"000000"}`)))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "30" {
		t.Fatalf("unexpected response %d retry=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
}

func TestVerifyToleratesMissingUser(t *testing.T) {
	f := newAuthFixture(t)
	f.login.EXPECT().VerifyCode(gomock.Any(), gomock.Any()).Return(&service.VerifyResult{}, nil)
	rr := httptest.NewRecorder()
	f.handler.Verify(rr, httptest.NewRequest(http.MethodPost, "/api/auth/verify", strings.NewReader(`{"email":"a@nextest.com.br","code":"123456"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decode(t, rr); body["user"] != nil {
		t.Fatalf("expected null user, got %+v", body)
	}
	if rr.Header().Get("Set-Cookie") != "" {
		t.Fatal("no cookie without a session")
	}
}

func TestMeReturnsSessionUser(t *testing.T) {
	f := newAuthFixture(t)
	f.login.EXPECT().CurrentUser(gomock.Any(), "u-1").Return(&domain.User{ID: "u-1", Email: "ana@nextest.com.br"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), &service.SessionGrant{Session: domain.Session{ID: "s-1", UserID: "u-1"}}))
	rr := httptest.NewRecorder()
	f.handler.Me(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	u, _ := decode(t, rr)["user"].(map[string]any)
	if u["id"] != "u-1" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestMeWithoutSessionAndMissingUser(t *testing.T) {
	f := newAuthFixture(t)
	f.login.EXPECT().CurrentUser(gomock.Any(), "").Return(nil, service.ErrNotAuthenticated)
	rr := httptest.NewRecorder()
	f.handler.Me(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	f.login.EXPECT().CurrentUser(gomock.Any(), "gone").Return(nil, service.ErrUserNotFound)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), &service.SessionGrant{Session: domain.Session{UserID: "gone"}}))
	rr = httptest.NewRecorder()
	f.handler.Me(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestLogoutDestroysSessionAndClearsCookie(t *testing.T) {
	f := newAuthFixture(t)
	f.sessions.EXPECT().Destroy(gomock.Any(), "tok").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "tok"})
	rr := httptest.NewRecorder()
	f.handler.Logout(rr, req)

	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("unexpected logout response %d %q", rr.Code, rr.Header().Get("Set-Cookie"))
	}

	rr = httptest.NewRecorder()
	f.handler.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout without a cookie must succeed, got %d", rr.Code)
	}
}
