package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthos/healthos/internal/config"
	"github.com/healthos/healthos/internal/domain/agents"
	"github.com/healthos/healthos/internal/domain/manage"
	"github.com/healthos/healthos/internal/platform/auth"
	"github.com/healthos/healthos/internal/platform/db"
	"github.com/healthos/healthos/internal/platform/metrics"
	"github.com/healthos/healthos/internal/platform/middleware"
	"github.com/healthos/healthos/internal/platform/predictor"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// deps are the collaborators the HTTP server is assembled from. Pool is nil
// when no database is configured.
type deps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	svc     *manage.Service
	metrics *metrics.Metrics
	pool    *pgxpool.Pool
	limiter middleware.LimiterStore
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: unauthenticated requests are treated as admin; do not use in production")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	p, err := predictor.New(ctx, cfg.Predictor())
	if err != nil {
		return fmt.Errorf("build predictor: %w", err)
	}
	svc := manage.NewService(p, logger)
	svc.SetMode(cfg.PredictorMode)
	svc.SetTimeout(cfg.PredictorTimeout)
	svc.SetMetrics(m)
	logger.Info().Str("predictor", p.Name()).Dur("timeout", cfg.PredictorTimeout).Msg("predictor configured")

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		svc.SetRepository(manage.NewPredictionRepoPG(pool))
		logger.Info().Msg("connected to database, prediction log enabled")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, prediction log disabled")
	}

	limiter, closeLimiter, err := newLimiterStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	e := newServer(deps{cfg: cfg, logger: logger, svc: svc, metrics: m, pool: pool, limiter: limiter})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLimiterStore picks Redis when REDIS_URL is set so that every instance
// shares one budget, and in-process buckets otherwise.
func newLimiterStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (middleware.LimiterStore, func(), error) {
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}

	if cfg.RedisURL != "" {
		rdb, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("rate limiting via redis")
		return middleware.NewRedisStore(rdb, rl), func() { closeRedis(rdb, logger) }, nil
	}

	store := middleware.NewMemoryStore(rl, 10*time.Minute)
	sweepCtx, cancel := context.WithCancel(ctx)
	go store.Run(sweepCtx, time.Minute)
	return store, cancel, nil
}

func closeRedis(rdb *redis.Client, logger zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn().Err(err).Msg("close redis client")
	}
}

func newServer(d deps) *echo.Echo {
	cfg := d.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(d.logger)

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(d.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.pool))
	e.GET("/metrics", echo.WrapHandler(d.metrics.Handler()))

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	apiV1 := e.Group("/api/v1",
		middleware.RequestTimeout(cfg.RequestTimeout),
		authMW,
		middleware.RateLimit(middleware.RateLimitOptions{
			Store:     d.limiter,
			Limit:     cfg.RateLimitBurst,
			Logger:    d.logger,
			OnLimited: d.metrics.RecordRateLimited,
		}),
	)

	manage.NewHandler(d.svc).RegisterRoutes(apiV1)
	agents.NewHandler().RegisterRoutes(apiV1)

	return e
}
