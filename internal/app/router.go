package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sympto/sympto/internal/config"
	"github.com/sympto/sympto/internal/domain/account"
	"github.com/sympto/sympto/internal/domain/chat"
	"github.com/sympto/sympto/internal/domain/prediction"
	"github.com/sympto/sympto/internal/domain/report"
	"github.com/sympto/sympto/internal/platform/apperr"
	"github.com/sympto/sympto/internal/platform/auth"
	"github.com/sympto/sympto/internal/platform/db"
	"github.com/sympto/sympto/internal/platform/health"
	"github.com/sympto/sympto/internal/platform/kv"
	"github.com/sympto/sympto/internal/platform/middleware"
)

func newRouter(cfg *config.Config, logger zerolog.Logger, deps Deps) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.Handler(logger, !cfg.IsProduction())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit(cfg.JSONBodyLimit(), cfg.UploadLimit()))

	// Auth
	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL())
	accounts := account.NewService(deps.Users, tokens)
	protect := auth.Protect(tokens, accounts)
	optional := auth.OptionalAuth(tokens, accounts)

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		KeyPrefix:         "auth:",
	}
	var store middleware.LimiterStore = middleware.NewMemoryStore(rl)
	if deps.Redis != nil {
		store = middleware.NewRedisStore(deps.Redis, rl)
	}
	limit := middleware.RateLimitWithStore(rl, store, logger)

	chatRL := rl
	chatRL.KeyPrefix = "chat:"
	var chatStore middleware.LimiterStore = middleware.NewMemoryStore(chatRL)
	if deps.Redis != nil {
		chatStore = middleware.NewRedisStore(deps.Redis, chatRL)
	}
	chatLimit := middleware.RateLimitWithStore(chatRL, chatStore, logger)

	// Inference
	inference := prediction.NewClient(cfg.InferenceURL, cfg.ForwardTimeout(), logger)
	uploader, err := prediction.NewUploader(cfg.UploadDir, cfg.UploadLimit())
	if err != nil {
		return nil, err
	}

	// Health
	monitor := health.NewMonitor(inference, deps.Database, logger)
	if deps.Redis != nil {
		monitor.WithRedis(health.PingFunc(kv.Ping(deps.Redis)))
	}

	e.GET("/", rootHandler)
	e.GET("/api/health", monitor.Handler)
	if deps.Pool != nil {
		e.GET("/api/health/db", db.HealthHandler(deps.Pool))
	}

	account.NewHandler(accounts).RegisterRoutes(e.Group("/api/auth"), protect, limit)
	prediction.NewHandler(inference, uploader, logger).RegisterRoutes(e.Group("/api/predict"), optional)
	report.NewHandler(report.NewService(deps.Reports, logger), deps.Narrator, logger).
		RegisterRoutes(e.Group("/api/reports"), protect, optional)
	chat.NewHandler(deps.Assistant, logger).RegisterRoutes(e.Group("/api/chat"), optional, chatLimit)
	e.RouteNotFound("/*", notFoundHandler)

	return e, nil
}

// endpoints is the public route table shown by the root and 404 responses.
var endpoints = []struct{ name, route string }{
	{"root", "GET /"},
	{"health", "GET /api/health"},
	{"signup", "POST /api/auth/signup"},
	{"login", "POST /api/auth/login"},
	{"profile", "GET /api/auth/me"},
	{"updateProfile", "PUT /api/auth/update-profile"},
	{"changePassword", "PUT /api/auth/change-password"},
	{"malaria", "POST /api/predict/malaria"},
	{"kidney", "POST /api/predict/kidney"},
	{"depression", "POST /api/predict/depression"},
	{"saveReport", "POST /api/reports/save"},
	{"narrative", "POST /api/reports/narrative"},
	{"reports", "GET /api/reports"},
	{"report", "GET /api/reports/:id"},
	{"deleteReport", "DELETE /api/reports/:id"},
	{"chat", "POST /api/chat"},
}

func rootHandler(c echo.Context) error {
	named := make(map[string]string, len(endpoints))
	for _, ep := range endpoints {
		named[ep.name] = ep.route
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "Sympto disease prediction API",
		"status":    "running",
		"version":   Version,
		"endpoints": named,
	})
}

func notFoundHandler(c echo.Context) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusNotFound)
	}
	routes := make([]string, len(endpoints))
	for i, ep := range endpoints {
		routes[i] = ep.route
	}
	return c.JSON(http.StatusNotFound, map[string]interface{}{
		"success":            false,
		"error":              "endpoint not found",
		"message":            "endpoint not found",
		"path":               c.Request().URL.Path,
		"method":             c.Request().Method,
		"availableEndpoints": routes,
	})
}
