package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextest/portal-auth/internal/http/response"
	"github.com/nextest/portal-auth/internal/observability"
)

// Limiter decides whether key may make another request in the current
// window. retryAfter is meaningful only when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

type tokenBucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localTokenBucketLimiter keeps one x/time/rate bucket per key. A bucket
// holds limit tokens and refills one every window/limit.
type localTokenBucketLimiter struct {
	mu      sync.Mutex
	store   map[string]*tokenBucketEntry
	cleanup time.Time
	now     func() time.Time
}

func NewLocalLimiter() Limiter {
	return &localTokenBucketLimiter{
		store:   make(map[string]*tokenBucketEntry),
		cleanup: time.Now().Add(time.Minute),
		now:     time.Now,
	}
}

func (l *localTokenBucketLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, e := range l.store {
			if now.Sub(e.lastSeen) > 2*window {
				delete(l.store, k)
			}
		}
		l.cleanup = now.Add(window)
	}

	e, ok := l.store[key]
	if !ok {
		e = &tokenBucketEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.store[key] = e
	}
	e.lastSeen = now
	if e.limiter.AllowN(now, 1) {
		return true, 0, nil
	}
	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay, nil
}

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
	backend string
}

// NewRateLimiter is the in-process limiter used when redis is disabled.
func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	rl := NewDistributedRateLimiter(NewLocalLimiter(), limit, window, FailClosed, scope)
	rl.backend = "local"
	return rl
}

func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limiter: limiter,
		limit:   limit,
		window:  window,
		mode:    mode,
		scope:   scope,
		backend: "redis",
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, retryAfter, err := rl.limiter.Allow(ctx, rl.scope+":"+ClientIP(r), rl.limit, rl.window)
			if err != nil {
				if rl.mode == FailOpen {
					observability.RecordRateLimitDecision(ctx, rl.scope, "backend_error_allow", rl.backend)
					slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request",
						"scope", rl.scope,
						"mode", string(rl.mode),
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				observability.RecordRateLimitDecision(ctx, rl.scope, "backend_error_deny", rl.backend)
				rl.reject(w, r, rl.window)
				return
			}
			if !allowed {
				observability.RecordRateLimitDecision(ctx, rl.scope, "deny", rl.backend)
				rl.reject(w, r, retryAfter)
				return
			}
			observability.RecordRateLimitDecision(ctx, rl.scope, "allow", rl.backend)
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, retryAfter)
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
}

// ClientIP is the request's remote host. chi's RealIP middleware has already
// replaced RemoteAddr from proxy headers by the time this runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
