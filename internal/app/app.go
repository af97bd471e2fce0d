// Package app assembles the HTTP service from its components and owns their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/config"
	"github.com/sympto/sympto/internal/domain/account"
	"github.com/sympto/sympto/internal/domain/report"
	"github.com/sympto/sympto/internal/platform/db"
	"github.com/sympto/sympto/internal/platform/health"
	"github.com/sympto/sympto/internal/platform/kv"
	"github.com/sympto/sympto/internal/platform/narrative"
)

// Version is reported by the root endpoint.
var Version = "2.0.0"

// Deps are the stateful collaborators the router is built on. Pool, Redis,
// Narrator and Assistant are optional.
type Deps struct {
	Users     account.UserRepository
	Reports   report.Repository
	Database  health.Pinger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Narrator  narrative.Generator
	Assistant narrative.Assistant
}

// Application is the running service: router, background keep-alive and
// the connections they use.
type Application struct {
	cfg       *config.Config
	logger    zerolog.Logger
	echo      *echo.Echo
	keepAlive *health.KeepAlive
	closers   []func() error
	errc      chan error
}

// New connects to Postgres and, when configured, Redis and the narrative
// provider, then builds the application. A Redis or Gemini failure only
// disables the feature that needs it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")

	closers := []func() error{func() error { pool.Close(); return nil }}
	deps := Deps{
		Users:    account.NewUserRepo(pool),
		Reports:  report.NewRepo(pool),
		Database: pool,
		Pool:     pool,
	}

	if cfg.RedisURL != "" {
		rdb, err := kv.Open(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rate limits are per instance")
		} else {
			deps.Redis = rdb
			closers = append(closers, rdb.Close)
		}
	}

	if g, err := narrative.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger); err == nil {
		deps.Narrator = g
		deps.Assistant = g
		closers = append(closers, g.Close)
	} else if errors.Is(err, narrative.ErrNotConfigured) {
		logger.Warn().Msg("GEMINI_API_KEY not set, narrative and chat endpoints disabled")
	} else {
		logger.Warn().Err(err).Msg("narrative provider unavailable")
	}

	a, err := NewWithDeps(cfg, logger, deps)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWithDeps builds the application on the given collaborators.
func NewWithDeps(cfg *config.Config, logger zerolog.Logger, deps Deps) (*Application, error) {
	if deps.Users == nil || deps.Reports == nil || deps.Database == nil {
		return nil, fmt.Errorf("users, reports and database are required")
	}
	e, err := newRouter(cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	return &Application{
		cfg:       cfg,
		logger:    logger,
		echo:      e,
		keepAlive: health.NewKeepAlive(cfg.ServerURL, cfg.KeepAlive(), logger),
		errc:      make(chan error, 1),
	}, nil
}

// Handler exposes the router, mainly for tests.
func (a *Application) Handler() http.Handler { return a.echo }

// Start binds the listen port, serves in the background and starts the
// keep-alive loop. Errors after a successful bind arrive on Errors.
func (a *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Port, err)
	}
	a.echo.Listener = ln

	go func() {
		a.logger.Info().Str("addr", ln.Addr().String()).Msg("starting server")
		if err := a.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errc <- err
		}
	}()

	a.keepAlive.Start(ctx)
	return nil
}

// Errors reports a server that stopped on its own.
func (a *Application) Errors() <-chan error { return a.errc }

// Addr returns the bound address once started.
func (a *Application) Addr() string {
	if a.echo.Listener == nil {
		return ""
	}
	return a.echo.Listener.Addr().String()
}

// Stop drains in-flight requests until ctx expires, stops the keep-alive
// loop and closes connections.
func (a *Application) Stop(ctx context.Context) error {
	a.keepAlive.Stop()

	var errs []error
	if err := a.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
