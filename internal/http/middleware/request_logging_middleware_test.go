package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type recordingLogHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingLogHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *recordingLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingLogHandler) WithGroup(string) slog.Handler      { return h }

func captureDefaultLogger(t *testing.T) *recordingLogHandler {
	t.Helper()
	orig := slog.Default()
	h := &recordingLogHandler{}
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return h
}

func TestStructuredRequestLoggerLevelsByStatus(t *testing.T) {
	logs := captureDefaultLogger(t)

	r := chi.NewRouter()
	r.Use(StructuredRequestLogger)
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) })
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/auth/login"},
		{http.MethodPost, "/api/auth/verify"},
		{http.MethodGet, "/api/health"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.RemoteAddr = "198.51.100.10:3456"
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(logs.records) != 3 {
		t.Fatalf("expected 3 log records, got %d", len(logs.records))
	}
	want := []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError}
	for i, level := range want {
		if logs.records[i].Level != level {
			t.Fatalf("record %d: expected level %v, got %v", i, level, logs.records[i].Level)
		}
		if logs.records[i].Message != "http.request" {
			t.Fatalf("record %d: unexpected message %q", i, logs.records[i].Message)
		}
	}

	attrs := recordAttrs(logs.records[1])
	if attrs["route"] != "/api/auth/verify" || attrs["status"] != "429" || attrs["method"] != http.MethodPost {
		t.Fatalf("unexpected attrs for throttled request: %+v", attrs)
	}
	if attrs["client_ip"] != "198.51.100.10" {
		t.Fatalf("expected client ip without port, got %q", attrs["client_ip"])
	}
}

func TestStructuredRequestLoggerCarriesRequestIDAndForwardedIP(t *testing.T) {
	logs := captureDefaultLogger(t)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP, RequestID, StructuredRequestLogger)
	r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.8")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if len(logs.records) != 1 {
		t.Fatalf("expected one log record, got %d", len(logs.records))
	}
	attrs := recordAttrs(logs.records[0])
	if attrs["status"] != "200" {
		t.Fatalf("expected fallback status 200, got %q", attrs["status"])
	}
	if attrs["request_id"] == "" {
		t.Fatal("expected request id attribute")
	}
	if attrs["client_ip"] != "203.0.113.8" {
		t.Fatalf("expected forwarded client ip, got %q", attrs["client_ip"])
	}
}

func recordAttrs(rec slog.Record) map[string]string {
	out := map[string]string{}
	rec.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}
