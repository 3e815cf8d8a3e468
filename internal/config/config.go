package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	SessionSecret     string
	SessionTTL        time.Duration
	SessionCookieName string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    string

	AllowedEmailDomain string
	OTPTTL             time.Duration
	OTPSingleActive    bool
	OTPDebugExposeCode bool

	VerifyAbuseFreeAttempts int
	VerifyAbuseBaseDelay    time.Duration
	VerifyAbuseMultiplier   float64
	VerifyAbuseMaxDelay     time.Duration
	VerifyAbuseResetWindow  time.Duration

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	AuthRateLimitPerMin int
	APIRateLimitPerMin  int

	ReadinessProbeTimeout        time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", getEnv("NODE_ENV", "development"))
	localLike := isLocalLikeEnv(env)

	cfg := &Config{
		Env:                     env,
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		SMTPHost:                strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:                getEnvInt("SMTP_PORT", 587),
		SMTPUser:                os.Getenv("SMTP_USER"),
		SMTPPass:                os.Getenv("SMTP_PASS"),
		SMTPFrom:                getEnv("SMTP_FROM", "Nextest Portal <no-reply@nextest.com.br>"),
		SessionSecret:           os.Getenv("SESSION_SECRET"),
		SessionCookieName:       getEnv("SESSION_COOKIE_NAME", "portal_session"),
		CookieDomain:            os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:            getEnvBool("COOKIE_SECURE", !localLike),
		CookieSameSite:          strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		AllowedEmailDomain:      strings.ToLower(getEnv("AUTH_ALLOWED_EMAIL_DOMAIN", "@nextest.com.br")),
		OTPSingleActive:         getEnvBool("AUTH_OTP_SINGLE_ACTIVE", true),
		OTPDebugExposeCode:      getEnvBool("AUTH_OTP_DEBUG_EXPOSE_CODE", false),
		VerifyAbuseFreeAttempts: getEnvInt("AUTH_VERIFY_ABUSE_FREE_ATTEMPTS", 5),
		VerifyAbuseMultiplier:   getEnvFloat("AUTH_VERIFY_ABUSE_MULTIPLIER", 2.0),
		RedisEnabled:            getEnvBool("REDIS_ENABLED", false),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		RedisPrefix:             getEnv("REDIS_PREFIX", "portal"),
		AuthRateLimitPerMin:     getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 20),
		APIRateLimitPerMin:      getEnvInt("API_RATE_LIMIT_PER_MIN", 120),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "portal-auth"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", !localLike),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", !localLike),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", !localLike),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SESSION_TTL", "24h", &cfg.SessionTTL},
		{"AUTH_OTP_TTL", "10m", &cfg.OTPTTL},
		{"AUTH_VERIFY_ABUSE_BASE_DELAY", "2s", &cfg.VerifyAbuseBaseDelay},
		{"AUTH_VERIFY_ABUSE_MAX_DELAY", "5m", &cfg.VerifyAbuseMaxDelay},
		{"AUTH_VERIFY_ABUSE_RESET_WINDOW", "15m", &cfg.VerifyAbuseResetWindow},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.SessionSecret) < 32 {
		errs = append(errs, "SESSION_SECRET must be at least 32 chars")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > 30*24*time.Hour {
		errs = append(errs, "SESSION_TTL must be between 1s and 30d")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		errs = append(errs, "SESSION_COOKIE_NAME is required")
	}
	if !isValidSameSite(c.CookieSameSite) {
		errs = append(errs, "COOKIE_SAMESITE must be one of lax, strict, none")
	}
	if c.CookieSameSite == "none" && !c.CookieSecure {
		errs = append(errs, "COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	if !strings.HasPrefix(c.AllowedEmailDomain, "@") || len(c.AllowedEmailDomain) < 3 {
		errs = append(errs, "AUTH_ALLOWED_EMAIL_DOMAIN must look like @example.com")
	}
	if c.OTPTTL <= 0 || c.OTPTTL > time.Hour {
		errs = append(errs, "AUTH_OTP_TTL must be between 1s and 1h")
	}
	if c.SMTPHost != "" {
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port")
		}
		if _, err := mail.ParseAddress(c.SMTPFrom); err != nil {
			errs = append(errs, "SMTP_FROM must be a valid address")
		}
	}
	if c.VerifyAbuseFreeAttempts < 0 {
		errs = append(errs, "AUTH_VERIFY_ABUSE_FREE_ATTEMPTS must be >= 0")
	}
	if c.VerifyAbuseMultiplier < 1 {
		errs = append(errs, "AUTH_VERIFY_ABUSE_MULTIPLIER must be >= 1")
	}
	if c.VerifyAbuseBaseDelay <= 0 || c.VerifyAbuseMaxDelay < c.VerifyAbuseBaseDelay {
		errs = append(errs, "AUTH_VERIFY_ABUSE_MAX_DELAY must be >= AUTH_VERIFY_ABUSE_BASE_DELAY > 0")
	}
	if c.VerifyAbuseResetWindow <= 0 {
		errs = append(errs, "AUTH_VERIFY_ABUSE_RESET_WINDOW must be > 0")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if c.ShutdownObservabilityTimeout <= 0 || c.ShutdownObservabilityTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_OBSERVABILITY_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}

	if c.IsProduction() {
		if !c.CookieSecure {
			errs = append(errs, "COOKIE_SECURE must be true in production")
		}
		if c.OTPDebugExposeCode {
			errs = append(errs, "AUTH_OTP_DEBUG_EXPOSE_CODE must be false in production")
		}
		if c.SMTPHost == "" {
			errs = append(errs, "SMTP_HOST is required in production")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction gates debug output. Anything that is not local-like counts.
func (c *Config) IsProduction() bool {
	return !isLocalLikeEnv(c.Env)
}

func (c *Config) MailConfigured() bool {
	return c.SMTPHost != ""
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidSameSite(v string) bool {
	switch v {
	case "lax", "strict", "none":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
