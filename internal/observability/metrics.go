package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextest/portal-auth/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

type AppMetrics struct {
	otpIssueCounter          metric.Int64Counter
	otpVerifyCounter         metric.Int64Counter
	otpCleanupDeleted        metric.Float64Histogram
	sessionEventCounter      metric.Int64Counter
	mailDeliveryCounter      metric.Int64Counter
	authReqDuration          metric.Float64Histogram
	rateLimitDecisionCounter metric.Int64Counter
	rateLimitRetryAfter      metric.Float64Histogram
	abuseGuardCounter        metric.Int64Counter
	abuseGuardCooldown       metric.Float64Histogram
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
	repositoryOpsCounter     metric.Int64Counter
	databaseStartupCounter   metric.Int64Counter
	databaseStartupDuration  metric.Float64Histogram
	toolCommandRuns          metric.Int64Counter
	toolCommandDuration      metric.Float64Histogram
	loadgenRequestsCounter   metric.Int64Counter
	middlewareEventCounter   metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

// instrumentSet creates instruments and keeps the first error so the
// constructor reads as a flat list.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("create counter %s: %w", name, err)
	}
	return c
}

func (s *instrumentSet) histogram(name, unit, desc string) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	h, err := s.meter.Float64Histogram(name, opts...)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("create histogram %s: %w", name, err)
	}
	return h
}

func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	s := &instrumentSet{meter: meter}
	m := &AppMetrics{
		otpIssueCounter:          s.counter("auth.otp.issue.events", "Verification code issuance outcomes"),
		otpVerifyCounter:         s.counter("auth.otp.verify.events", "Verification code check outcomes"),
		otpCleanupDeleted:        s.histogram("auth.otp.cleanup.deleted_rows", "", "Verification codes removed per cleanup run"),
		sessionEventCounter:      s.counter("auth.session.events", "Session lifecycle events"),
		mailDeliveryCounter:      s.counter("mail.delivery.events", "Outbound verification mail results"),
		authReqDuration:          s.histogram("auth.request.duration", "s", "Duration of auth endpoint requests in seconds"),
		rateLimitDecisionCounter: s.counter("http.rate_limit.decisions", "Rate limiter allow/deny decisions"),
		rateLimitRetryAfter:      s.histogram("http.rate_limit.retry_after", "s", "Retry-after duration in seconds for throttled requests"),
		abuseGuardCounter:        s.counter("auth.abuse_guard.events", "Verify abuse guard checks and updates"),
		abuseGuardCooldown:       s.histogram("auth.abuse_guard.cooldown", "s", "Cooldown duration returned by the verify abuse guard"),
		healthCheckResultCounter: s.counter("health.check.results", "Dependency health check results"),
		healthCheckDuration:      s.histogram("health.check.duration", "s", "Duration of health dependency checks in seconds"),
		repositoryOpsCounter:     s.counter("repository.operations", "Repository calls by outcome"),
		databaseStartupCounter:   s.counter("database.startup.events", "Database connect, migrate and seed results"),
		databaseStartupDuration:  s.histogram("database.startup.duration", "s", "Database startup stage duration in seconds"),
		toolCommandRuns:          s.counter("tool.command.runs", "CLI tool command runs"),
		toolCommandDuration:      s.histogram("tool.command.duration", "s", "CLI tool command duration in seconds"),
		loadgenRequestsCounter:   s.counter("loadgen.requests", "Requests sent by the load generator"),
		middlewareEventCounter:   s.counter("http.middleware.events", "Middleware decisions such as CORS preflight, body limit and session load"),
	}
	if s.err != nil {
		return nil, s.err
	}
	return m, nil
}

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res, err := serviceResource(ctx, cfg, "metric")
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := NewAppMetrics(mp.Meter(instrumentationName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	setAppMetrics(m)

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func setAppMetrics(m *AppMetrics) {
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func attrs(kv ...string) metric.MeasurementOption {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(out...)
}

// RecordOTPIssue counts login outcomes: issued, invalid_email, user_not_found,
// user_inactive, error.
func RecordOTPIssue(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.otpIssueCounter.Add(ctx, 1, attrs("outcome", outcome))
	}
}

// RecordOTPVerify counts verify outcomes: success, invalid_code, malformed,
// rate_limited, error.
func RecordOTPVerify(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.otpVerifyCounter.Add(ctx, 1, attrs("outcome", outcome))
	}
}

func RecordOTPCleanup(ctx context.Context, deleted int64) {
	if m := current(); m != nil {
		m.otpCleanupDeleted.Record(ctx, float64(deleted))
	}
}

func RecordSessionEvent(ctx context.Context, action, outcome string) {
	if m := current(); m != nil {
		m.sessionEventCounter.Add(ctx, 1, attrs("action", action, "outcome", outcome))
	}
}

func RecordMailDelivery(ctx context.Context, transport, outcome string) {
	if m := current(); m != nil {
		m.mailDeliveryCounter.Add(ctx, 1, attrs("transport", transport, "outcome", outcome))
	}
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m := current(); m != nil {
		m.authReqDuration.Record(ctx, duration.Seconds(), attrs("endpoint", endpoint, "status", status))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode string) {
	if m := current(); m != nil {
		m.rateLimitDecisionCounter.Add(ctx, 1, attrs("scope", scope, "outcome", outcome, "mode", mode))
	}
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, retryAfter time.Duration) {
	if m := current(); m != nil {
		m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), attrs("scope", scope))
	}
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	if m := current(); m != nil {
		m.abuseGuardCounter.Add(ctx, 1, attrs("scope", scope, "action", action, "outcome", outcome))
	}
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	if m := current(); m != nil {
		m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), attrs("scope", scope, "action", action))
	}
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	if m := current(); m != nil {
		m.healthCheckResultCounter.Add(ctx, 1, attrs("check", check, "outcome", outcome))
	}
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	if m := current(); m != nil {
		m.healthCheckDuration.Record(ctx, duration.Seconds(), attrs("check", check))
	}
}

func RecordRepositoryOperation(ctx context.Context, repo, operation, outcome string) {
	if m := current(); m != nil {
		m.repositoryOpsCounter.Add(ctx, 1, attrs("repository", repo, "operation", operation, "outcome", outcome))
	}
}

func RecordDatabaseStartupEvent(ctx context.Context, stage, outcome string) {
	if m := current(); m != nil {
		m.databaseStartupCounter.Add(ctx, 1, attrs("stage", stage, "outcome", outcome))
	}
}

func RecordDatabaseStartupDuration(ctx context.Context, stage string, duration time.Duration) {
	if m := current(); m != nil {
		m.databaseStartupDuration.Record(ctx, duration.Seconds(), attrs("stage", stage))
	}
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	if m := current(); m != nil {
		m.toolCommandRuns.Add(ctx, 1, attrs("tool", tool, "command", command, "outcome", outcome))
	}
}

func RecordToolCommandDuration(ctx context.Context, tool, command, outcome string, duration time.Duration) {
	if m := current(); m != nil {
		m.toolCommandDuration.Record(ctx, duration.Seconds(), attrs("tool", tool, "command", command, "outcome", outcome))
	}
}

func RecordLoadgenRequest(ctx context.Context, statusClass, profile string) {
	if m := current(); m != nil {
		m.loadgenRequestsCounter.Add(ctx, 1, attrs("status_class", statusClass, "profile", profile))
	}
}

// RecordMiddlewareEvent counts decisions taken before a handler runs.
func RecordMiddlewareEvent(ctx context.Context, middleware, outcome string) {
	if m := current(); m != nil {
		m.middlewareEventCounter.Add(ctx, 1, attrs("middleware", middleware, "outcome", outcome))
	}
}
