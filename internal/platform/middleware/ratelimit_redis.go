package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter for KEYS[1], starting a window of
// ARGV[1] milliseconds on the first hit. It returns the count and the
// remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {current, ttl}
`)

// RedisStore is a fixed-window limiter shared by every server instance that
// points at the same Redis. Each window admits BurstSize requests and lasts
// as long as the token bucket would take to refill from empty.
type RedisStore struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisStore(client *redis.Client, cfg RateLimitConfig) *RedisStore {
	return &RedisStore{
		client: client,
		limit:  int64(cfg.BurstSize),
		window: windowFor(cfg),
		prefix: "ratelimit:",
	}
}

func windowFor(cfg RateLimitConfig) time.Duration {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		return time.Second
	}
	secs := float64(cfg.BurstSize) / cfg.RequestsPerSecond
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

func (s *RedisStore) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, s.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected result %v", res)
	}
	return decide(res[0], time.Duration(res[1])*time.Millisecond, s.limit), nil
}

func decide(count int64, ttl time.Duration, limit int64) Decision {
	if count <= limit {
		return Decision{Allowed: true, Remaining: int(limit - count)}
	}
	retry := int(math.Ceil(ttl.Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Decision{RetryAfter: retry}
}
