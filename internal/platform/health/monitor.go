// Package health reports on the service's dependencies and keeps an idle
// deployment awake.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const CheckTimeout = 5 * time.Second

const (
	statusHealthy     = "healthy"
	statusUnhealthy   = "unhealthy"
	statusUnavailable = "unavailable"
)

// Pinger is a dependency that can be checked for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ModelPinger is the inference service, which also reports which models it
// has loaded.
type ModelPinger interface {
	Ping(ctx context.Context) (map[string]any, error)
}

// Report is the body of GET /api/health.
type Report struct {
	Status    string         `json:"status"`
	Server    string         `json:"server"`
	Database  string         `json:"database"`
	Inference string         `json:"inference"`
	Redis     string         `json:"redis,omitempty"`
	Models    map[string]any `json:"models,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (r Report) Healthy() bool { return r.Status == "OK" }

type Monitor struct {
	inference ModelPinger
	db        Pinger
	redis     Pinger
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewMonitor(inference ModelPinger, db Pinger, logger zerolog.Logger) *Monitor {
	return &Monitor{
		inference: inference,
		db:        db,
		timeout:   CheckTimeout,
		logger:    logger.With().Str("component", "health").Logger(),
		now:       time.Now,
	}
}

// WithRedis adds Redis to the checked dependencies.
func (m *Monitor) WithRedis(p Pinger) *Monitor {
	m.redis = p
	return m
}

// Check pings every dependency concurrently, each bounded by the check
// timeout.
func (m *Monitor) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		wg                   sync.WaitGroup
		models               map[string]any
		infErr, dbErr, rdErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		models, infErr = m.inference.Ping(ctx)
	}()
	go func() {
		defer wg.Done()
		dbErr = m.db.Ping(ctx)
	}()
	if m.redis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rdErr = m.redis.Ping(ctx)
		}()
	}
	wg.Wait()

	r := Report{
		Status:    "OK",
		Server:    statusHealthy,
		Database:  statusHealthy,
		Inference: statusHealthy,
		Models:    models,
		Timestamp: m.now().UTC(),
	}
	if m.redis != nil {
		r.Redis = statusHealthy
	}

	if rdErr != nil {
		r.Status, r.Redis, r.Error = "ERROR", statusUnhealthy, "redis: "+rdErr.Error()
	}
	if dbErr != nil {
		r.Status, r.Database, r.Error = "ERROR", statusUnhealthy, "database: "+dbErr.Error()
	}
	if infErr != nil {
		r.Status, r.Inference, r.Error = "ERROR", statusUnavailable, "inference: "+infErr.Error()
		r.Models = nil
	}
	if !r.Healthy() {
		m.logger.Warn().Str("error", r.Error).Msg("health check failed")
	}
	return r
}

// Handler serves GET /api/health: 200 when every dependency answers, 503
// otherwise.
func (m *Monitor) Handler(c echo.Context) error {
	r := m.Check(c.Request().Context())
	status := http.StatusOK
	if !r.Healthy() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, r)
}
