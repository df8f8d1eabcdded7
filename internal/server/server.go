package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/webscout/config"
	"github.com/mohammad-safakhou/webscout/internal/agent/telemetry"
	"github.com/mohammad-safakhou/webscout/internal/approval"
	"github.com/mohammad-safakhou/webscout/internal/archive"
	"github.com/mohammad-safakhou/webscout/internal/runtime"
	"github.com/mohammad-safakhou/webscout/internal/scraper"
	"github.com/mohammad-safakhou/webscout/internal/session"
	"github.com/mohammad-safakhou/webscout/provider"
)

// Run wires the whole service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// Shared dependencies (top-level DI)
	ctx := context.Background()

	var snap session.Snapshotter
	if addr := cfg.RedisAddr(); addr != "" {
		rs, err := session.NewRedisSnapshotter(ctx, addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
		if err != nil {
			return fmt.Errorf("redis snapshotter: %w", err)
		}
		defer rs.Close()
		snap = rs
	}
	store := session.NewStore(snap, nil)

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.NewTelemetry(nil)
	}

	var prov provider.Provider
	if cfg.LLM.Provider != "" {
		var err error
		prov, err = provider.NewProvider(provider.Client(cfg.LLM.Provider), provider.Options{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
		if err != nil {
			return fmt.Errorf("llm provider: %w", err)
		}
	}

	// Optional archive database for accounts and delivered packages.
	var arch *archive.Store
	if dsn := cfg.PostgresDSN(); dsn != "" {
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			baseLogger.Printf("migrate: %v", err)
		}
		var err error
		arch, err = archive.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("archive store: %w", err)
		}
		defer arch.Close()
	}

	tester, err := scraper.NewTester(scraper.Limits{
		Timeout:        cfg.Generation.TestTimeout,
		Interpreter:    cfg.Generation.Interpreter,
		MaxOutputBytes: cfg.Generation.MaxOutputBytes,
	}, nil)
	if err != nil {
		return fmt.Errorf("scraper tester: %w", err)
	}
	generator := scraper.NewGenerator(prov, nil)
	pipeline := approval.NewPipeline(store, generator, tester, tele, nil, cfg.Generation.MaxIterations)

	pool := NewWorkerPool(cfg.Exploration.MaxConcurrent)

	api := e.Group("/api")

	if arch != nil {
		if cfg.Server.JWTSecret == "" {
			return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
		}
		NewAuthHandler(arch, []byte(cfg.Server.JWTSecret)).Register(api.Group("/auth"))
	}

	sessions := api.Group("/sessions")
	if cfg.Server.JWTSecret != "" {
		sessions.Use(runtime.EchoAuthMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	NewSessionsHandler(cfg, store, tele, prov, pool).Register(sessions)
	NewPipelineHandler(store, pipeline, arch, pool).Register(sessions)

	if arch != nil {
		archived := api.Group("/archive")
		if cfg.Server.JWTSecret != "" {
			archived.Use(runtime.EchoAuthMiddleware([]byte(cfg.Server.JWTSecret)))
		}
		archived.GET("/sessions", func(c echo.Context) error {
			rows, err := arch.ListArchivedSessions(c.Request().Context())
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			if rows == nil {
				rows = []archive.ArchivedSession{}
			}
			return c.JSON(http.StatusOK, rows)
		})
	}

	if cfg.Janitor.Enabled {
		janitor, err := NewJanitor(store, cfg.Janitor.Cron, cfg.Janitor.StaleTTL)
		if err != nil {
			return fmt.Errorf("janitor: %w", err)
		}
		go janitor.Run()
		defer janitor.Stop()
	}

	baseLogger.Printf("listening on %s", cfg.Server.Listen)
	return e.Start(cfg.Server.Listen)
}
