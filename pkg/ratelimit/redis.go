package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements an atomic token-bucket check-and-consume.
// Tokens refill continuously at capacity/60 per second (a "per-minute"
// budget), capped at capacity. Returns {allowed, tokens_remaining}.
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local capacity = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local rate = capacity / 60.0

local bucket = redis.call('HMGET', tokens_key, 'tokens', 'ts')
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])
if tokens == nil then
  tokens = capacity
  ts = now
end

local delta = now - ts
if delta < 0 then delta = 0 end
tokens = math.min(capacity, tokens + delta * rate)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', tokens_key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', tokens_key, 120)

return {allowed, tostring(tokens)}
`)

// RedisLimiter is the shared-store token bucket, backed by a Lua script so
// the read-modify-write cycle is atomic across gateway replicas.
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, class RouteClass, overrideLimit int) (Decision, error) {
	limit := overrideLimit
	if limit <= 0 {
		limit = DefaultLimits()[class]
	}
	if limit <= 0 {
		limit = 60
	}

	bucketKey := fmt.Sprintf("ratelimit:{%s}:%s", key, class)
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{bucketKey}, limit, now).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("evaluating token bucket script: %w", err)
	}

	row, ok := res.([]interface{})
	if !ok || len(row) != 2 {
		return Decision{}, fmt.Errorf("unexpected token bucket script result: %v", res)
	}

	allowed := row[0].(int64) == 1
	var remainingTokens float64
	fmt.Sscanf(row[1].(string), "%f", &remainingTokens)

	rate := float64(limit) / 60.0
	secondsToFull := (float64(limit) - remainingTokens) / rate

	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(remainingTokens),
		ResetAt:   time.Now().Add(time.Duration(secondsToFull * float64(time.Second))),
	}, nil
}
