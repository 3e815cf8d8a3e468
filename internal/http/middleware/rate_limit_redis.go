package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] sorted set of admitted request timestamps (ms).
// ARGV: now, cutoff, limit, member, window.
// Returns {1, 0} when admitted, {0, oldest} when the window is full.
var redisSlidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[5])
  return {1, 0}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {0, oldest[2] or ARGV[1]}
`)

// RedisSlidingWindowLimiter shares per-client request logs across API
// replicas. Only admitted requests enter the log, so a client that keeps
// retrying while throttled is released one window after its oldest success.
type RedisSlidingWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisSlidingWindowLimiter(client redis.UniversalClient, prefix string) *RedisSlidingWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisSlidingWindowLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisSlidingWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if l.client == nil {
		return false, window, errors.New("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	if window < time.Millisecond {
		window = time.Second
	}
	nowMS := l.now().UnixMilli()
	windowMS := window.Milliseconds()
	raw, err := redisSlidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		nowMS, nowMS-windowMS, limit, uuid.NewString(), windowMS,
	).Result()
	if err != nil {
		return false, window, err
	}
	values, ok := raw.([]any)
	if !ok || len(values) != 2 {
		return false, window, errors.New("unexpected redis script response type")
	}
	admitted, err := parseRedisInt64(values[0])
	if err != nil {
		return false, window, err
	}
	if admitted == 1 {
		return true, 0, nil
	}
	oldestMS, err := parseRedisInt64(values[1])
	if err != nil {
		return false, window, err
	}
	retryAfter := time.Duration(oldestMS+windowMS-nowMS) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter, nil
}

// parseRedisInt64 accepts integer replies and the string scores returned by
// ZRANGE WITHSCORES.
func parseRedisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis integer overflows int64: %d", n)
		}
		return int64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("parse redis score %q: %w", n, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
