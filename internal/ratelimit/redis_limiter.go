package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisTokenBucketScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local refill_per_ms = tonumber(ARGV[3])

if refill_per_ms <= 0 then
  refill_per_ms = 0.001
end

local key = KEYS[1]
local stored_tokens = redis.call("HGET", key, "tokens")
local stored_last = redis.call("HGET", key, "last_ms")
local tokens = burst
local last_ms = now_ms

if stored_tokens then
  tokens = tonumber(stored_tokens)
end
if stored_last then
  last_ms = tonumber(stored_last)
end
if now_ms < last_ms then
  last_ms = now_ms
end

local elapsed_ms = now_ms - last_ms
tokens = math.min(burst, tokens + (elapsed_ms * refill_per_ms))

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

local retry_ms = 0
if tokens < 1 then
  retry_ms = math.ceil((1 - tokens) / refill_per_ms)
end
if retry_ms <= 0 then
  retry_ms = 1
end

local remaining = math.floor(tokens)
if remaining < 0 then
  remaining = 0
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_ms", tostring(now_ms))
redis.call("PEXPIRE", key, math.ceil(burst / refill_per_ms))
return {allowed, retry_ms, remaining}
`)

// RedisTokenBucketLimiter shares device buckets across instances. The bucket
// state lives in a Redis hash keyed by prefix and device, mutated atomically
// by a Lua script.
type RedisTokenBucketLimiter struct {
	client redis.UniversalClient
	prefix string
	policy Policy
}

func NewRedisTokenBucketLimiter(client redis.UniversalClient, prefix string, policy Policy) *RedisTokenBucketLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisTokenBucketLimiter{client: client, prefix: prefix, policy: normalizePolicy(policy)}
}

func (l *RedisTokenBucketLimiter) Allow(ctx context.Context, deviceID string) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if deviceID == "" {
		deviceID = "unknown"
	}
	nowMS := time.Now().UnixMilli()
	refillPerMS := l.policy.RefillPerSec / 1000.0
	key := fmt.Sprintf("%s:%s", l.prefix, deviceID)

	raw, err := redisTokenBucketScript.Run(ctx, l.client, []string{key}, nowMS, l.policy.Burst, refillPerMS).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis script response type")
	}
	allowed, err := parseRedisInt64(values[0])
	if err != nil {
		return Decision{}, err
	}
	retryMS, err := parseRedisInt64(values[1])
	if err != nil {
		return Decision{}, err
	}
	remaining, err := parseRedisInt64(values[2])
	if err != nil {
		return Decision{}, err
	}
	if retryMS <= 0 {
		retryMS = 1
	}
	return Decision{
		Allowed:    allowed == 1,
		RetryAfter: time.Duration(retryMS) * time.Millisecond,
		Remaining:  int(max(remaining, 0)),
	}, nil
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
