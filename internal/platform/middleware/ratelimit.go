package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyPrefix separates counters of independently limited route groups.
	KeyPrefix string
}

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int // seconds, set when not allowed
}

// LimiterStore tracks request budgets per key.
type LimiterStore interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tokens)
}

func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

func (b *tokenBucket) idleFor(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill)
}

// minIdle is the shortest time a bucket is kept after its last use.
const minIdle = time.Minute

// MemoryStore holds per-key token buckets in process memory. A bucket left
// alone long enough to refill completely is equivalent to a fresh one, so
// such buckets are swept when new keys arrive.
type MemoryStore struct {
	buckets   map[string]*tokenBucket
	mu        sync.RWMutex
	config    RateLimitConfig
	idle      time.Duration // zero disables sweeping
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryStore(cfg RateLimitConfig) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*tokenBucket),
		config:  cfg,
		now:     time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		s.idle = time.Duration(float64(cfg.BurstSize) / cfg.RequestsPerSecond * float64(time.Second))
		if s.idle < minIdle {
			s.idle = minIdle
		}
	}
	s.lastSweep = s.now()
	return s
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func (s *MemoryStore) getBucket(key string, now time.Time) *tokenBucket {
	s.mu.RLock()
	bucket, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return bucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.buckets[key]; ok {
		return bucket
	}
	s.sweepLocked(now)
	bucket = newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize, now)
	s.buckets[key] = bucket
	return bucket
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if s.idle == 0 || now.Sub(s.lastSweep) < s.idle {
		return
	}
	s.lastSweep = now
	for k, b := range s.buckets {
		if b.idleFor(now) >= s.idle {
			delete(s.buckets, k)
		}
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (Decision, error) {
	now := s.now()
	bucket := s.getBucket(key, now)
	if !bucket.allow(now) {
		return Decision{RetryAfter: bucket.retryAfter()}, nil
	}
	return Decision{Allowed: true, Remaining: bucket.remaining()}, nil
}

// RateLimitWithStore limits requests per client IP using store. When the
// store itself fails the request is let through and the failure logged.
func RateLimitWithStore(cfg RateLimitConfig, store LimiterStore, logger zerolog.Logger) echo.MiddlewareFunc {
	limitHeader := strconv.Itoa(cfg.BurstSize)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.KeyPrefix + c.RealIP()

			d, err := store.Allow(c.Request().Context(), key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			return next(c)
		}
	}
}
