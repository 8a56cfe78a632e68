package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/labimport/internal/config"
	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/domain/resultimport"
	"github.com/ehr/labimport/internal/domain/worksheet"
	"github.com/ehr/labimport/internal/platform/auth"
	"github.com/ehr/labimport/internal/platform/db"
	"github.com/ehr/labimport/internal/platform/fhir"
	"github.com/ehr/labimport/internal/platform/middleware"
)

const (
	version       = "0.1.0"
	importsPath   = "/api/v1/result-imports"
	mappingRoute  = importsPath + "/:id/mapping"
	shutdownGrace = 10 * time.Second
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger(nil)
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("authentication disabled: every request runs as an admin dev-user")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "labimport-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	securityCfg := middleware.DefaultSecurityHeadersConfig()
	securityCfg.HSTS = cfg.TLSEnabled
	e.Use(middleware.SecurityHeaders(securityCfg))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", db.TenantHeader},
	}))
	e.Use(middleware.BodyLimit("1M", cfg.ImportMaxUploadSize, importsPath))
	if cfg.RequestTimeout > 0 {
		// A submitted mapping must finish its apply transaction.
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, func(c echo.Context) bool {
			return c.Path() == mappingRoute
		}))
	}

	// Auth middleware
	switch cfg.ResolvedAuthMode() {
	case config.AuthModeDevelopment:
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	case config.AuthModeHMAC:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	default:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	rateLimitCfg.Skipper = auth.AuthSkipper
	e.Use(middleware.RateLimit(rateLimitCfg))

	// API group: tenant connection and audit trail
	apiV1 := e.Group("/api/v1")
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	apiV1.Use(middleware.Audit(logger))

	// Concept dictionary
	var conceptRepo concept.Repository = concept.NewConceptRepoPG(pool)
	if cfg.ConceptCatalogFile != "" {
		catalog, err := concept.LoadCatalogFile(cfg.ConceptCatalogFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.ConceptCatalogFile).Msg("failed to load concept catalog")
		}
		conceptRepo = catalog
		logger.Info().Str("file", cfg.ConceptCatalogFile).Msg("serving concepts from static catalog")
	}
	conceptSvc, err := concept.NewService(conceptRepo, cfg.ConceptCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create concept service")
	}
	concept.NewHandler(conceptSvc).RegisterRoutes(apiV1)

	// Field mappings
	mappingSvc := fieldmapping.NewService(fieldmapping.NewFieldMappingRepoPG(pool), conceptSvc)
	fieldmapping.NewHandler(mappingSvc).RegisterRoutes(apiV1)

	// Worksheets
	worksheetSvc := worksheet.NewService(
		worksheet.NewWorksheetRepoPG(pool),
		worksheet.NewItemRepoPG(pool),
		worksheet.NewResultRepoPG(pool),
		db.NewTransactor(pool),
	)
	worksheet.NewHandler(worksheetSvc).RegisterRoutes(apiV1)

	// Import sessions
	readyChecks := []db.Check{db.PoolCheck(pool)}
	sessions := resultimport.NewMemoryStore(cfg.ImportSessionTTL)
	if cfg.RedisURL != "" {
		client, err := resultimport.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		sessions = resultimport.NewRedisStore(client, cfg.ImportSessionTTL)
		readyChecks = append(readyChecks, redisCheck(client))
		logger.Info().Msg("import sessions stored in redis")
	}
	importSvc := resultimport.NewService(mappingSvc, worksheetSvc, sessions, resultimport.Options{
		PreviewRows: cfg.ImportPreviewRows,
		MaxRows:     cfg.ImportMaxRows,
	}, logger)
	resultimport.NewHandler(importSvc, mappingSvc).RegisterRoutes(apiV1)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/ready", db.HealthHandler(readyChecks...))

	// SIGHUP drops cached concepts after a dictionary update.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			conceptSvc.Purge()
			logger.Info().Msg("concept cache purged")
		}
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func redisCheck(client *redis.Client) db.Check {
	return db.Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}
}
