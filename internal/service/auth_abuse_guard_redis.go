package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments the failure counter, restarting it after the reset window, and
// stores the resulting cooldown deadline. Returns the delay in ms.
var redisAuthAbuseBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local key = KEYS[1]
local fail_count = tonumber(redis.call("HGET", key, "fail_count") or "0")
local last_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")
if last_ms == 0 or (now_ms - last_ms) > reset_ms then
  fail_count = 0
end
fail_count = fail_count + 1

local delay = 0
if fail_count > free_attempts then
  delay = math.floor(base_ms * (multiplier ^ (fail_count - free_attempts - 1)))
end
if delay > max_ms then
  delay = max_ms
end

redis.call("HSET", key, "fail_count", tostring(fail_count), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(now_ms + delay))
redis.call("PEXPIRE", key, reset_ms + delay + 60000)
return delay
`)

type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
	now    func() time.Time
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	return &RedisAuthAbuseGuard{
		client: client,
		prefix: prefix + ":abuse",
		policy: policy.normalized(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	nowMS := g.now().UnixMilli()
	var longest time.Duration
	for _, d := range abuseDimensions(identity, ip) {
		vals, err := g.client.HMGet(ctx, g.key(scope, d), "last_failure_ms", "cooldown_until_ms").Result()
		if err != nil {
			return 0, err
		}
		if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			continue
		}
		lastMS, err := redisInt(vals[0])
		if err != nil {
			return 0, err
		}
		untilMS, err := redisInt(vals[1])
		if err != nil {
			return 0, err
		}
		if nowMS-lastMS > g.policy.ResetWindow.Milliseconds() || untilMS <= nowMS {
			continue
		}
		longest = max(longest, time.Duration(untilMS-nowMS)*time.Millisecond)
	}
	return longest, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	nowMS := g.now().UnixMilli()
	var longest time.Duration
	for _, d := range abuseDimensions(identity, ip) {
		res, err := redisAuthAbuseBumpScript.Run(ctx, g.client, []string{g.key(scope, d)},
			nowMS,
			g.policy.BaseDelay.Milliseconds(),
			g.policy.Multiplier,
			g.policy.MaxDelay.Milliseconds(),
			g.policy.ResetWindow.Milliseconds(),
			g.policy.FreeAttempts,
		).Result()
		if err != nil {
			return 0, err
		}
		delayMS, err := redisInt(res)
		if err != nil {
			return 0, err
		}
		longest = max(longest, time.Duration(delayMS)*time.Millisecond)
	}
	return longest, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	dims := abuseDimensions(identity, ip)
	return g.client.Del(ctx, g.key(scope, dims[0]), g.key(scope, dims[1])).Err()
}

func (g *RedisAuthAbuseGuard) key(scope AuthAbuseScope, d abuseDimension) string {
	return fmt.Sprintf("%s:%s:%s:%s", g.prefix, scope, d.name, abuseKeyPart(d.value))
}

// redisInt accepts script integers and HMGET string fields.
func redisInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
