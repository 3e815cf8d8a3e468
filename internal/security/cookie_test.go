package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewCookieManagerSameSiteMapping(t *testing.T) {
	if got := NewCookieManager("s", "", true, "strict").SameSite; got != http.SameSiteStrictMode {
		t.Fatalf("strict mapping mismatch: %v", got)
	}
	if got := NewCookieManager("s", "", true, "none").SameSite; got != http.SameSiteNoneMode {
		t.Fatalf("none mapping mismatch: %v", got)
	}
	if got := NewCookieManager("s", "", true, "unexpected").SameSite; got != http.SameSiteLaxMode {
		t.Fatalf("default mapping mismatch: %v", got)
	}
}

func TestCookieManagerSetSessionFlags(t *testing.T) {
	mgr := NewCookieManager("portal_session", "nextest.com.br", true, "strict")
	rr := httptest.NewRecorder()
	mgr.SetSession(rr, "tok", time.Now().Add(24*time.Hour))

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "portal_session" || c.Value != "tok" || c.Path != "/" || !c.HttpOnly || !c.Secure || c.Domain != "nextest.com.br" {
		t.Fatalf("unexpected session cookie: %#v", c)
	}
	if c.MaxAge < 86000 || c.MaxAge > 86400 {
		t.Fatalf("unexpected max-age %d", c.MaxAge)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected same-site: %v", c.SameSite)
	}
}

func TestCookieManagerSetSessionPastExpiryKeepsPositiveMaxAge(t *testing.T) {
	mgr := NewCookieManager("portal_session", "", false, "lax")
	rr := httptest.NewRecorder()
	mgr.SetSession(rr, "tok", time.Now().Add(-time.Minute))
	if c := rr.Result().Cookies()[0]; c.MaxAge != 1 {
		t.Fatalf("expected clamped max-age, got %d", c.MaxAge)
	}
}

func TestCookieManagerClear(t *testing.T) {
	mgr := NewCookieManager("portal_session", "nextest.com.br", false, "lax")
	rr := httptest.NewRecorder()
	mgr.Clear(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cleared cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.MaxAge != -1 || c.Value != "" || !c.HttpOnly || c.Path != "/" {
		t.Fatalf("cookie expected cleared, got value=%q max_age=%d", c.Value, c.MaxAge)
	}
}

func TestGetCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "x"})

	if got := GetCookie(req, "portal_session"); got != "x" {
		t.Fatalf("unexpected cookie value %q", got)
	}
	if got := NewCookieManager("portal_session", "", false, "lax").Read(req); got != "x" {
		t.Fatalf("unexpected manager read %q", got)
	}
	if got := GetCookie(req, "missing"); got != "" {
		t.Fatalf("expected empty cookie value for missing cookie, got %q", got)
	}
}
