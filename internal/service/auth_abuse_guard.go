package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/nextest/portal-auth/internal/config"
)

type AuthAbuseScope string

// AuthAbuseScopeVerify counts wrong codes submitted to /api/auth/verify.
const AuthAbuseScopeVerify AuthAbuseScope = "verify"

type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

func VerifyAbusePolicy(cfg *config.Config) AuthAbusePolicy {
	return AuthAbusePolicy{
		FreeAttempts: cfg.VerifyAbuseFreeAttempts,
		BaseDelay:    cfg.VerifyAbuseBaseDelay,
		Multiplier:   cfg.VerifyAbuseMultiplier,
		MaxDelay:     cfg.VerifyAbuseMaxDelay,
		ResetWindow:  cfg.VerifyAbuseResetWindow,
	}
}

// AuthAbuseGuard tracks failures per identity and per client IP. A cooldown on
// either dimension blocks the attempt.
type AuthAbuseGuard interface {
	Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error
}

type NoopAuthAbuseGuard struct{}

func (NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error { return nil }

// normalized fills zero values with the defaults used in config.
func (p AuthAbusePolicy) normalized() AuthAbusePolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 5 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 15 * time.Minute
	}
	return p
}

// delay is zero for the first FreeAttempts failures, then grows
// geometrically from BaseDelay up to MaxDelay.
func (p AuthAbusePolicy) delay(failCount int) time.Duration {
	if failCount <= p.FreeAttempts {
		return 0
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failCount-p.FreeAttempts-1)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

type abuseDimension struct {
	name  string
	value string
}

func abuseDimensions(identity, ip string) [2]abuseDimension {
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		id = "anonymous"
	}
	addr := strings.TrimSpace(ip)
	if addr == "" {
		addr = "unknown"
	}
	return [2]abuseDimension{{"id", id}, {"ip", addr}}
}

// abuseKeyPart keeps raw emails out of shared storage keys.
func abuseKeyPart(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:12])
}

type abuseEntry struct {
	failCount     int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

type InMemoryAuthAbuseGuard struct {
	mu     sync.Mutex
	policy AuthAbusePolicy
	now    func() time.Time
	data   map[string]abuseEntry
}

func NewInMemoryAuthAbuseGuard(policy AuthAbusePolicy) *InMemoryAuthAbuseGuard {
	return &InMemoryAuthAbuseGuard{
		policy: policy.normalized(),
		now:    func() time.Time { return time.Now().UTC() },
		data:   make(map[string]abuseEntry),
	}
}

func (g *InMemoryAuthAbuseGuard) Check(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, d := range abuseDimensions(identity, ip) {
		key := g.key(scope, d)
		e, ok := g.data[key]
		if !ok {
			continue
		}
		if now.Sub(e.lastFailureAt) > g.policy.ResetWindow {
			delete(g.data, key)
			continue
		}
		if e.cooldownUntil.After(now) {
			longest = max(longest, e.cooldownUntil.Sub(now))
		}
	}
	return longest, nil
}

func (g *InMemoryAuthAbuseGuard) RegisterFailure(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, d := range abuseDimensions(identity, ip) {
		key := g.key(scope, d)
		e := g.data[key]
		if e.lastFailureAt.IsZero() || now.Sub(e.lastFailureAt) > g.policy.ResetWindow {
			e.failCount = 0
		}
		e.failCount++
		e.lastFailureAt = now
		delay := g.policy.delay(e.failCount)
		e.cooldownUntil = now.Add(delay)
		g.data[key] = e
		longest = max(longest, delay)
	}
	return longest, nil
}

func (g *InMemoryAuthAbuseGuard) Reset(_ context.Context, scope AuthAbuseScope, identity, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range abuseDimensions(identity, ip) {
		delete(g.data, g.key(scope, d))
	}
	return nil
}

func (g *InMemoryAuthAbuseGuard) key(scope AuthAbuseScope, d abuseDimension) string {
	return fmt.Sprintf("%s:%s:%s", scope, d.name, d.value)
}
