package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type mockLimiter struct {
	allow bool
	retry time.Duration
	err   error
}

func (m mockLimiter) Allow(context.Context, string, int, time.Duration) (bool, time.Duration, error) {
	return m.allow, m.retry, m.err
}

type recordingLimiter struct {
	lastKey string
}

func (r *recordingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, time.Duration, error) {
	r.lastKey = key
	return true, 0, nil
}

func serveThrough(t *testing.T, rl *RateLimiter, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestDistributedRateLimiterFailOpenOnBackendError(t *testing.T) {
	rl := NewDistributedRateLimiter(mockLimiter{err: errors.New("redis down")}, 10, time.Minute, FailOpen, "api")
	if rr := serveThrough(t, rl, "10.0.0.1:1111"); rr.Code != http.StatusOK {
		t.Fatalf("expected fail-open to allow request, got %d", rr.Code)
	}
}

func TestDistributedRateLimiterFailClosedOnBackendError(t *testing.T) {
	rl := NewDistributedRateLimiter(mockLimiter{err: errors.New("redis down")}, 10, time.Minute, FailClosed, "auth")
	rr := serveThrough(t, rl, "10.0.0.1:1111")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected fail-closed to reject request, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected window as retry-after, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimiterDenySetsRetryAfterAndEnvelope(t *testing.T) {
	rl := NewDistributedRateLimiter(mockLimiter{allow: false, retry: 1500 * time.Millisecond}, 1, time.Minute, FailClosed, "auth")
	rr := serveThrough(t, rl, "10.0.0.1:1111")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected retry-after rounded up to 2, got %q", got)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"code":"RATE_LIMITED"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRateLimiterKeysByScopeAndClientIP(t *testing.T) {
	rec := &recordingLimiter{}
	rl := NewDistributedRateLimiter(rec, 10, time.Minute, FailClosed, "auth")
	serveThrough(t, rl, "203.0.113.9:5555")
	if rec.lastKey != "auth:203.0.113.9" {
		t.Fatalf("unexpected limiter key %q", rec.lastKey)
	}
}

func TestLocalLimiterBurstThenRefill(t *testing.T) {
	l := NewLocalLimiter().(*localTokenBucketLimiter)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.cleanup = now.Add(time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _, _ := l.Allow(ctx, "k", 3, 3*time.Second); !ok {
			t.Fatalf("request %d should fit the burst", i+1)
		}
	}
	ok, retry, err := l.Allow(ctx, "k", 3, 3*time.Second)
	if err != nil || ok {
		t.Fatalf("expected deny after burst, ok=%v err=%v", ok, err)
	}
	if retry <= 0 || retry > time.Second {
		t.Fatalf("expected retry within one refill interval, got %v", retry)
	}
	if ok, _, _ := l.Allow(ctx, "other", 3, 3*time.Second); !ok {
		t.Fatal("other keys must have their own bucket")
	}

	now = now.Add(time.Second)
	if ok, _, _ := l.Allow(ctx, "k", 3, 3*time.Second); !ok {
		t.Fatal("expected one token refilled after one interval")
	}
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	l := NewLocalLimiter().(*localTokenBucketLimiter)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.cleanup = now

	_, _, _ = l.Allow(context.Background(), "idle", 1, time.Second)
	now = now.Add(time.Minute)
	_, _, _ = l.Allow(context.Background(), "fresh", 1, time.Second)
	if _, ok := l.store["idle"]; ok {
		t.Fatal("expected idle bucket to be evicted")
	}
}

func TestRetryAfterHeader(t *testing.T) {
	cases := map[time.Duration]string{0: "1", 200 * time.Millisecond: "1", time.Second: "1", 1001 * time.Millisecond: "2", time.Minute: "60"}
	for d, want := range cases {
		if got := retryAfterHeader(d); got != want {
			t.Fatalf("retryAfterHeader(%v)=%q want %q", d, got, want)
		}
	}
}
