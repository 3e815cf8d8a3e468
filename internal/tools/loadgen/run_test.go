package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunHealthProfileCountsStatuses(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "health",
		Duration:    300 * time.Millisecond,
		RPS:         50,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 || res.Status2xx != res.TotalRequests {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Status4xx != 0 || res.Status5xx != 0 {
		t.Fatalf("unexpected error statuses: %+v", res)
	}
}

func TestRunLoginProfileSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Path == "/api/auth/verify" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "login",
		Duration:    300 * time.Millisecond,
		RPS:         40,
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status2xx == 0 || res.Status4xx == 0 {
		t.Fatalf("expected both login successes and verify failures: %+v", res)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{Profile: "nope"}); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestRequestsForProfile(t *testing.T) {
	for _, profile := range []string{"health", "login", "mixed", "error-heavy"} {
		if len(requestsForProfile(profile, "a@nextest.com.br")) == 0 {
			t.Fatalf("profile %s has no requests", profile)
		}
	}
	login := requestsForProfile("login", "a@nextest.com.br")[0]
	if login.body != `{"email":"a@nextest.com.br"}` {
		t.Fatalf("unexpected login body: %s", login.body)
	}
}

func TestRunCountsThrottledResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "login",
		Duration:    200 * time.Millisecond,
		RPS:         40,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 || res.Throttled != res.TotalRequests || res.Status4xx != res.TotalRequests {
		t.Fatalf("expected every response throttled: %+v", res)
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := &options{profile: " Mixed ", rps: 5, concurrency: 1, duration: time.Second}
	if err := opts.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if opts.profile != "mixed" {
		t.Fatalf("expected normalized profile, got %q", opts.profile)
	}

	opts.profile = "spike"
	if err := opts.validate(); err == nil {
		t.Fatal("expected unknown profile error")
	}
	opts.profile = "health"
	opts.rps = 0
	if err := opts.validate(); err == nil {
		t.Fatal("expected rps error")
	}
}

func TestSummarizeReportsRate(t *testing.T) {
	lines := summarize("health", 2*time.Second, Result{TotalRequests: 30, Status2xx: 28, Status4xx: 2, Throttled: 2})
	want := map[string]bool{"profile=health": true, "achieved_rps=15.0": true, "throttled=2": true}
	for _, l := range lines {
		delete(want, l)
	}
	if len(want) != 0 {
		t.Fatalf("missing summary lines %v in %v", want, lines)
	}
}
