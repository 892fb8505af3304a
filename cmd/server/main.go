package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ocr-job-service/config"
	ocrhttp "ocr-job-service/internal/adapters/primary/http"
	resultcache "ocr-job-service/internal/adapters/secondary"
	"ocr-job-service/internal/adapters/secondary/store"
	"ocr-job-service/internal/backend"
	"ocr-job-service/internal/core/ports"
	"ocr-job-service/internal/core/services"
	"ocr-job-service/internal/ingest"
	"ocr-job-service/internal/rasterize"
	"ocr-job-service/internal/worker"
	pkgcache "ocr-job-service/pkg/cache"
	pkgerrors "ocr-job-service/pkg/errors"
	"ocr-job-service/pkg/logger"
	"ocr-job-service/pkg/metrics"
	"ocr-job-service/pkg/security"
	"ocr-job-service/pkg/validator"

	"github.com/rs/zerolog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Filename:   cfg.Logging.Filename,
		TimeFormat: cfg.Logging.TimeFormat,
	}); err != nil {
		fmt.Printf("failed to initialize structured logger: %v, using default\n", err)
	}

	log := logger.Get()
	ctx := logger.WithCorrelationID(context.Background())
	zlog := *log.Logger

	log.FromContext(ctx).Info().Str("environment", cfg.Server.Environment).Str("port", cfg.Server.Port).Msg("starting ocr job service")

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	}

	validatorConfig := &validator.Config{
		MaxFileSize:        cfg.Validation.MaxFileSize,
		MinFileSize:        cfg.Validation.MinFileSize,
		AllowedMimeTypes:   cfg.Validation.AllowedMimeTypes,
		AllowedExtensions:  cfg.Validation.AllowedExtensions,
		RequireContentType: cfg.Validation.RequireContentType,
	}
	validator.Init(validatorConfig)
	v := validator.Get()

	sqliteStore, err := store.Open(cfg.StorePath())
	if err != nil {
		log.FromContext(ctx).Fatal().Err(err).Msg("failed to open store")
	}
	defer sqliteStore.Close()

	resultCache := newResultCache(cfg, zlog)

	router, err := backend.NewRouter(cfg.OCR, zlog, metrics.Get())
	if err != nil {
		log.FromContext(ctx).Fatal().Err(err).Msg("failed to start backend router")
	}
	defer router.Close()

	rasterizer := rasterize.NewMutool(cfg.Rasterizer)

	pool := worker.NewPool(cfg.Worker, sqliteStore, router.Adapter(), zlog, metrics.Get())
	pool.Start()
	defer pool.Stop()

	ingestSvc := ingest.New(sqliteStore, rasterizer, v, validatorConfig, zlog)
	ocrSvc := services.New(sqliteStore, pool, resultCache, cfg.StorePath(), ocrhttp.ParseSections, zlog)

	tokenIssuer := security.NewTokenIssuer(&security.Config{
		Secret: cfg.Security.ControlTokenSecret,
		Issuer: "ocr-job-service",
	}, zlog)

	handler := ocrhttp.NewHandler(ingestSvc, ocrSvc, tokenIssuer)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := err.(*pkgerrors.AppError); ok {
				return c.Status(appErr.HTTPStatus).JSON(pkgerrors.NewErrorResponse(appErr))
			}
			unexpected := pkgerrors.NewUnexpectedError(err.Error())
			return c.Status(unexpected.HTTPStatus).JSON(pkgerrors.NewErrorResponse(unexpected))
		},
		BodyLimit: int(cfg.Security.MaxRequestBodySize),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", start.UnixNano())
		}
		reqCtx := logger.WithRequestID(c.Context(), requestID)

		err := c.Next()

		duration := time.Since(start)
		log.LogRequest(reqCtx, c.Method(), c.Path(), c.Get("User-Agent"), c.IP(), duration)

		if cfg.Metrics.Enabled {
			statusCode := fmt.Sprintf("%d", c.Response().StatusCode())
			metrics.Get().RecordHTTPRequest(c.Method(), c.Path(), statusCode, duration, int64(len(c.Response().Body())))
		}

		return err
	})

	if cfg.Security.RateLimitEnabled {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.Security.RateLimitPerMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
			},
		}))
	}

	if cfg.Security.CorsEnabled {
		origin := "*"
		if len(cfg.Security.CorsAllowedOrigins) > 0 {
			origin = cfg.Security.CorsAllowedOrigins[0]
		}
		app.Use(cors.New(cors.Config{
			AllowOrigins: origin,
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		}))
	}

	handler.SetupRoutes(app)

	if cfg.Health.Enabled {
		app.Get(cfg.Health.ReadinessPath, func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ready"})
		})
		app.Get(cfg.Health.LivenessPath, func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "alive"})
		})
	}

	if cfg.Metrics.Enabled {
		go func() {
			metricsApp := fiber.New()
			metricsApp.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
			if err := metricsApp.Listen(":" + cfg.Metrics.Port); err != nil && err != http.ErrServerClosed {
				log.FromContext(ctx).Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	go func() {
		log.FromContext(ctx).Info().Str("port", cfg.Server.Port).Msg("http server starting")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.FromContext(ctx).Fatal().Err(err).Msg("failed to start http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.FromContext(ctx).Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.FromContext(ctx).Error().Err(err).Msg("server shutdown error")
	}

	log.FromContext(ctx).Info().Msg("server stopped")
}

// newResultCache builds the Redis-backed result cache when enabled,
// degrading to a no-op implementation when Redis is disabled or fails to
// initialize. Caching is never load-bearing for correctness.
func newResultCache(cfg *config.Config, zlog zerolog.Logger) ports.ResultCache {
	if !cfg.Redis.Enabled {
		return &resultcache.NoopResultCache{}
	}

	redisURL := fmt.Sprintf("redis://%s/%d", cfg.GetRedisURL(), cfg.Redis.DB)
	if cfg.Redis.Password != "" {
		redisURL = fmt.Sprintf("redis://:%s@%s/%d", cfg.Redis.Password, cfg.GetRedisURL(), cfg.Redis.DB)
	}

	c, err := pkgcache.NewCache(&pkgcache.CacheConfig{
		RedisURL:      redisURL,
		DefaultTTL:    1 * time.Hour,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		PoolSize:      10,
		EnableMetrics: false,
		Namespace:     "ocrjobs",
	}, zlog, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("result cache unavailable, falling back to no-op")
		return &resultcache.NoopResultCache{}
	}

	return resultcache.NewRedisResultCache(c, zlog)
}
