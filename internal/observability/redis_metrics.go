package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentRedis installs a command hook on the session and rate limit
// client. Instruments come from the global meter provider, so call it after
// InitRuntime.
func InstrumentRedis(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	hook, err := newRedisHook(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("redis instrumentation disabled", "error", err)
		return
	}
	client.AddHook(hook)
	logger.Info("redis instrumentation enabled")
}

type redisHook struct {
	commands metric.Int64Counter
	latency  metric.Float64Histogram
	keyspace metric.Int64Counter
}

func newRedisHook(meter metric.Meter) (*redisHook, error) {
	s := &instrumentSet{meter: meter}
	h := &redisHook{
		commands: s.counter("redis.commands", "Redis commands by name and status"),
		latency:  s.histogram("redis.command.duration", "s", "Redis command latency in seconds"),
		keyspace: s.counter("redis.keyspace.lookups", "Session lookups by hit or miss"),
	}
	if s.err != nil {
		return nil, s.err
	}
	return h, nil
}

func (h *redisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd, time.Since(start))
		return err
	}
}

func (h *redisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			h.observe(ctx, cmd, elapsed)
		}
		return err
	}
}

func (h *redisHook) observe(ctx context.Context, cmd redis.Cmder, elapsed time.Duration) {
	name := strings.ToLower(cmd.Name())
	status := redisStatus(cmd.Err())
	h.commands.Add(ctx, 1, attrs("command", name, "status", status))
	h.latency.Record(ctx, elapsed.Seconds(), attrs("command", name))
	if name == "get" || name == "getex" {
		switch status {
		case "success":
			h.keyspace.Add(ctx, 1, attrs("result", "hit"))
		case "miss":
			h.keyspace.Add(ctx, 1, attrs("result", "miss"))
		}
	}
}

func redisStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "timeout"
	default:
		return "error"
	}
}
