package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/database"
	"github.com/nextest/portal-auth/internal/health"
	"github.com/nextest/portal-auth/internal/http/handler"
	"github.com/nextest/portal-auth/internal/http/router"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
)

const testDomain = "@nextest.com.br"

type capturingMailer struct {
	mu   sync.Mutex
	sent []service.LoginCodeMessage
}

func (m *capturingMailer) Transport() string { return "capture" }

func (m *capturingMailer) SendLoginCode(_ context.Context, msg service.LoginCodeMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) lastCode(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == email {
			return m.sent[i].Code
		}
	}
	t.Fatalf("no code mailed to %s", email)
	return ""
}

type portalServerOptions struct {
	redis       bool
	cfgOverride func(*config.Config)
	mailer      service.Mailer
	authRPM     int
}

type portalTestEnv struct {
	baseURL string
	client  *http.Client
	db      *gorm.DB
	mailer  *capturingMailer
	redis   *miniredis.Miniredis
	cfg     *config.Config
}

func newPortalTestServer(t *testing.T, opts portalServerOptions) *portalTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Env:                     "test",
		SessionSecret:           "abcdefghijklmnopqrstuvwxyz123456",
		SessionTTL:              time.Hour,
		SessionCookieName:       "portal_session",
		CookieSameSite:          "lax",
		AllowedEmailDomain:      testDomain,
		OTPTTL:                  10 * time.Minute,
		OTPSingleActive:         true,
		VerifyAbuseFreeAttempts: 5,
		VerifyAbuseBaseDelay:    2 * time.Second,
		VerifyAbuseMultiplier:   2,
		VerifyAbuseMaxDelay:     5 * time.Minute,
		VerifyAbuseResetWindow:  15 * time.Minute,
		RedisPrefix:             "portal-it",
		ReadinessProbeTimeout:   time.Second,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	env := &portalTestEnv{db: db, cfg: cfg, mailer: &capturingMailer{}}
	var mailer service.Mailer = env.mailer
	if opts.mailer != nil {
		mailer = opts.mailer
	}

	var redisClient redis.UniversalClient
	if opts.redis {
		env.redis = miniredis.RunT(t)
		redisClient = redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
		t.Cleanup(func() { _ = redisClient.Close() })
		cfg.RedisEnabled = true
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	codes := repository.NewVerificationCodeRepository(db)

	var store service.SessionStore = service.NewDBSessionStore(repository.NewSessionRepository(db))
	var guard service.AuthAbuseGuard = service.NewInMemoryAuthAbuseGuard(service.VerifyAbusePolicy(cfg))
	checkers := []health.Checker{health.NewDBChecker(db), health.NewMailChecker(cfg.MailConfigured())}
	if redisClient != nil {
		store = service.NewRedisSessionStore(redisClient, cfg.RedisPrefix+":session")
		guard = service.NewRedisAuthAbuseGuard(redisClient, cfg.RedisPrefix+":abuse", service.VerifyAbusePolicy(cfg))
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}

	sessions := service.NewSessionService(store, security.NewSessionSigner(cfg.SessionSecret), cfg.SessionTTL)
	login := service.NewLoginService(service.LoginPolicyFromConfig(cfg), users, codes, mailer, sessions, guard, logger)
	authRPM := opts.authRPM
	if authRPM <= 0 {
		authRPM = 1000
	}
	cookies := security.NewCookieManager(cfg.SessionCookieName, "", false, cfg.CookieSameSite)

	r := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(login, sessions, cookies, true),
		HealthHandler:    handler.NewHealthHandler(health.NewProbeRunner(cfg.ReadinessProbeTimeout, checkers...), cfg.RedisEnabled),
		Sessions:         sessions,
		Cookies:          cookies,
		APIRateLimitRPM:  1000,
		AuthRateLimitRPM: authRPM,
		DebugErrors:      true,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	env.baseURL = srv.URL
	env.client = newClient(t, srv)
	return env
}

func newClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar
	return client
}

func (e *portalTestEnv) freshClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func (e *portalTestEnv) provision(t *testing.T, email, name string, active bool) {
	t.Helper()
	if _, err := database.ProvisionUser(e.db, testDomain, database.UserSeed{Email: email, Name: name, Active: active}); err != nil {
		t.Fatalf("provision %s: %v", email, err)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode body %q: %v", string(raw), err)
		}
	}
	return resp, out
}

func requestCode(t *testing.T, env *portalTestEnv, client *http.Client, email string) string {
	t.Helper()
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/auth/login", map[string]string{"email": email})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d body=%v", resp.StatusCode, body)
	}
	return env.mailer.lastCode(t, strings.ToLower(strings.TrimSpace(email)))
}

func otherCode(code string) string {
	if code == "999999" {
		return "000000"
	}
	return "999999"
}
