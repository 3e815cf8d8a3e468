package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/nextest/portal-auth/internal/app"
	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/database"
	"github.com/nextest/portal-auth/internal/health"
	"github.com/nextest/portal-auth/internal/http/handler"
	"github.com/nextest/portal-auth/internal/http/middleware"
	"github.com/nextest/portal-auth/internal/http/router"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/nextest/portal-auth/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewVerificationCodeRepository,
	repository.NewSessionRepository,
)

var SecuritySet = wire.NewSet(
	provideSessionSigner,
	provideCookieManager,
)

var ServiceSet = wire.NewSet(
	provideMailer,
	provideAuthAbuseGuard,
	provideSessionStore,
	provideSessionService,
	provideLoginService,
	wire.Bind(new(service.SessionManager), new(*service.SessionService)),
	wire.Bind(new(service.LoginServiceInterface), new(*service.LoginService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	provideHealthHandler,
	provideGlobalRateLimiter,
	provideAuthRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// MigrationRunner applies the schema without starting the HTTP stack.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

// Run migrates and reports the tables that were missing beforehand.
func (m *MigrationRunner) Run() ([]string, error) {
	pending := database.PendingTables(m.db)
	if err := database.Migrate(m.db); err != nil {
		return nil, err
	}
	return pending, nil
}

func (m *MigrationRunner) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Janitor exposes the stores the migrate tool prunes: stale verification
// codes and expired database sessions.
type Janitor struct {
	codes    repository.VerificationCodeRepository
	sessions repository.SessionRepository
	db       *gorm.DB
}

func NewJanitor(db *gorm.DB, codes repository.VerificationCodeRepository, sessions repository.SessionRepository) *Janitor {
	return &Janitor{codes: codes, sessions: sessions, db: db}
}

func (j *Janitor) Codes() repository.VerificationCodeRepository { return j.codes }

func (j *Janitor) Sessions() repository.SessionRepository { return j.sessions }

func (j *Janitor) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedis(client, logger)
	return client
}

func provideSessionSigner(cfg *config.Config) *security.SessionSigner {
	return security.NewSessionSigner(cfg.SessionSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.SessionCookieName, cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideMailer(cfg *config.Config, logger *slog.Logger) service.Mailer {
	if cfg.MailConfigured() {
		return service.NewSMTPMailer(cfg)
	}
	return service.NewLogMailer(logger, !cfg.IsProduction() && cfg.OTPDebugExposeCode)
}

func provideAuthAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient) service.AuthAbuseGuard {
	policy := service.VerifyAbusePolicy(cfg)
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisAuthAbuseGuard(redisClient, cfg.RedisPrefix+":abuse", policy)
	}
	return service.NewInMemoryAuthAbuseGuard(policy)
}

func provideSessionStore(cfg *config.Config, redisClient redis.UniversalClient, sessionRepo repository.SessionRepository) service.SessionStore {
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisSessionStore(redisClient, cfg.RedisPrefix+":session")
	}
	return service.NewDBSessionStore(sessionRepo)
}

func provideSessionService(cfg *config.Config, store service.SessionStore, signer *security.SessionSigner) *service.SessionService {
	return service.NewSessionService(store, signer, cfg.SessionTTL)
}

func provideLoginService(
	cfg *config.Config,
	users repository.UserRepository,
	codes repository.VerificationCodeRepository,
	mailer service.Mailer,
	sessions service.SessionManager,
	guard service.AuthAbuseGuard,
	logger *slog.Logger,
) *service.LoginService {
	return service.NewLoginService(service.LoginPolicyFromConfig(cfg), users, codes, mailer, sessions, guard, logger)
}

func provideAuthHandler(cfg *config.Config, login service.LoginServiceInterface, sessions service.SessionManager, cookies *security.CookieManager) *handler.AuthHandler {
	return handler.NewAuthHandler(login, sessions, cookies, !cfg.IsProduction())
}

func provideHealthHandler(cfg *config.Config, probes *health.ProbeRunner) *handler.HealthHandler {
	return handler.NewHealthHandler(probes, cfg.RedisEnabled)
}

func provideGlobalRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.GlobalRateLimiterFunc {
	if cfg.RedisEnabled && redisClient != nil {
		redisLimiter := middleware.NewRedisSlidingWindowLimiter(redisClient, cfg.RedisPrefix+":rl:api")
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.APIRateLimitPerMin,
			time.Minute,
			middleware.FailOpen,
			"api",
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute, "api").Middleware()
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.AuthRateLimiterFunc {
	if cfg.RedisEnabled && redisClient != nil {
		redisLimiter := middleware.NewRedisSlidingWindowLimiter(redisClient, cfg.RedisPrefix+":rl:auth")
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.AuthRateLimitPerMin,
			time.Minute,
			middleware.FailClosed,
			"auth",
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute, "auth").Middleware()
}

func provideRouterDependencies(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	healthHandler *handler.HealthHandler,
	sessions service.SessionManager,
	cookies *security.CookieManager,
	globalRateLimiter router.GlobalRateLimiterFunc,
	authRateLimiter router.AuthRateLimiterFunc,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:       authHandler,
		HealthHandler:     healthHandler,
		Sessions:          sessions,
		Cookies:           cookies,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		AuthRateLimitRPM:  cfg.AuthRateLimitPerMin,
		GlobalRateLimiter: globalRateLimiter,
		AuthRateLimiter:   authRateLimiter,
		DebugErrors:       !cfg.IsProduction(),
		EnableOTelHTTP:    cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if cfg.RedisEnabled {
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}
	checkers = append(checkers, health.NewMailChecker(cfg.MailConfigured()))
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, checkers...)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient)
}
