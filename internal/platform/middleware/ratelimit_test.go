package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func memoryLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return RateLimitWithStore(cfg, NewMemoryStore(cfg), zerolog.Nop())
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}

	e := echo.New()
	handler := memoryLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Errorf("request %d: expected X-RateLimit-Limit '5', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
	}

	e := echo.New()
	handler := memoryLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	err := handler(e.NewContext(req, rec))

	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := memoryLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err == nil {
		t.Fatal("expected error for rate-limited request")
	}

	retryVal, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", rec.Header().Get("Retry-After"))
	}
	if retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryVal)
	}
	if remaining := rec.Header().Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", remaining)
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := memoryLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	send := func(ip string) error {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)
		req.RemoteAddr = ip + ":1234"
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	if err := send("10.0.0.1"); err != nil {
		t.Fatalf("first request from 10.0.0.1: %v", err)
	}
	if err := send("10.0.0.1"); err == nil {
		t.Fatal("second request from 10.0.0.1: expected rate limit error")
	}
	if err := send("10.0.0.2"); err != nil {
		t.Fatalf("first request from 10.0.0.2: %v", err)
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimitWithStore_FailsOpen(t *testing.T) {
	e := echo.New()
	called := false
	handler := RateLimitWithStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 10}, failingStore{}, zerolog.Nop())(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	if err := handler(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected request to pass when store fails")
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(0, 1, now)
	b.allow(now)
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
}

func TestMemoryStore_BucketPerKey(t *testing.T) {
	store := NewMemoryStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	now := time.Now()
	b1 := store.getBucket("key1", now)
	if b1 == nil {
		t.Fatal("expected non-nil bucket")
	}
	if b2 := store.getBucket("key1", now); b1 != b2 {
		t.Error("expected same bucket instance for same key")
	}
	if b3 := store.getBucket("key2", now); b1 == b3 {
		t.Error("expected different bucket for different key")
	}
}

func TestMemoryStore_SweepsRefilledBuckets(t *testing.T) {
	store := NewMemoryStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 10})
	clock := time.Now()
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	for _, key := range []string{"auth:10.0.0.1", "auth:10.0.0.2"} {
		if _, err := store.Allow(ctx, key); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	clock = clock.Add(30 * time.Second)
	store.Allow(ctx, "auth:10.0.0.2")
	store.Allow(ctx, "auth:10.0.0.3")
	if store.Len() != 3 {
		t.Fatalf("expected no sweep before the idle period, got %d keys", store.Len())
	}

	clock = clock.Add(40 * time.Second)
	store.Allow(ctx, "auth:10.0.0.4")
	if store.Len() != 3 {
		t.Errorf("expected only the idle key to be swept, got %d keys", store.Len())
	}
	store.mu.RLock()
	_, stale := store.buckets["auth:10.0.0.1"]
	_, recent := store.buckets["auth:10.0.0.2"]
	store.mu.RUnlock()
	if stale || !recent {
		t.Errorf("unexpected sweep result: stale kept=%v recent kept=%v", stale, recent)
	}
}

func TestMemoryStore_ZeroRateNeverSweeps(t *testing.T) {
	store := NewMemoryStore(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})
	clock := time.Now()
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	store.Allow(ctx, "a")
	clock = clock.Add(24 * time.Hour)
	store.Allow(ctx, "b")
	if d, _ := store.Allow(ctx, "a"); d.Allowed {
		t.Error("an exhausted bucket that never refills must not be reset")
	}
}

func TestRedisStore_Window(t *testing.T) {
	tests := []struct {
		cfg  RateLimitConfig
		want time.Duration
	}{
		{RateLimitConfig{RequestsPerSecond: 1, BurstSize: 10}, 10 * time.Second},
		{RateLimitConfig{RequestsPerSecond: 4, BurstSize: 2}, 500 * time.Millisecond},
		{RateLimitConfig{RequestsPerSecond: 0, BurstSize: 2}, time.Second},
	}
	for _, tt := range tests {
		if got := windowFor(tt.cfg); got != tt.want {
			t.Errorf("windowFor(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestRedisStore_Decide(t *testing.T) {
	d := decide(3, 5*time.Second, 10)
	if !d.Allowed || d.Remaining != 7 {
		t.Errorf("expected allowed with 7 remaining, got %+v", d)
	}

	d = decide(11, 2300*time.Millisecond, 10)
	if d.Allowed {
		t.Error("expected request over the limit to be denied")
	}
	if d.RetryAfter != 3 {
		t.Errorf("expected Retry-After 3, got %d", d.RetryAfter)
	}

	if d := decide(11, 0, 10); d.RetryAfter != 1 {
		t.Errorf("expected minimum Retry-After 1, got %d", d.RetryAfter)
	}
}
