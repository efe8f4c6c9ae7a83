package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/config"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/billing"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/clinical"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/identity"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/inventory"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/scheduling"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/cache"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/middleware"
)

const (
	eventInboxSize = 1024
	requestTimeout = 30 * time.Second
	bodyLimit      = "2M"
)

type services struct {
	tokens     *auth.TokenIssuer
	identity   *identity.Service
	scheduling *scheduling.Service
	inventory  *inventory.Service
	clinical   *clinical.Service
	billing    *billing.Service
}

func toWindow(w config.SlotWindow) scheduling.Window {
	return scheduling.Window{Start: w.Start, End: w.End, Step: w.Step}
}

// newServices builds every domain service on top of pool. A nil locker or
// publisher falls back to the no-op implementation.
func newServices(cfg *config.Config, pool *pgxpool.Pool, locker cache.SlotLocker, pub events.Publisher) (*services, error) {
	secret := cfg.JWTSecret
	if secret == "" && cfg.IsDev() {
		secret = "development-only-secret-change-me"
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	window, err := cfg.SlotWindow()
	if err != nil {
		return nil, err
	}
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	if pub == nil {
		pub = events.Noop{}
	}

	tx := db.NewTxManager(pool)

	identitySvc := identity.NewService(
		identity.NewProfileRepo(pool),
		identity.NewSpecialtyRepo(pool),
		identity.NewDoctorRepo(pool),
		identity.NewPatientRepo(pool),
		tx, tokens,
	)
	schedulingSvc := scheduling.NewService(scheduling.NewRepo(pool), identitySvc, tx, locker, pub, toWindow(window))
	inventorySvc := inventory.NewService(
		inventory.NewItemRepo(pool),
		inventory.NewMovementRepo(pool),
		identitySvc, tx, pub, cfg.ExpiringSoonDays,
	)
	clinicalSvc := clinical.NewService(
		clinical.NewConsultationRepo(pool),
		clinical.NewPrescriptionRepo(pool),
		identitySvc, schedulingSvc, tx,
	)
	billingSvc := billing.NewService(billing.NewInvoiceRepo(pool), identitySvc, schedulingSvc, tx, pub)

	return &services{
		tokens:     tokens,
		identity:   identitySvc,
		scheduling: schedulingSvc,
		inventory:  inventorySvc,
		clinical:   clinicalSvc,
		billing:    billingSvc,
	}, nil
}

// newPublisher fans events out to Kafka and the webhook when configured.
func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	var pubs []events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, eventInboxSize, logger))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka publisher enabled")
	}
	if cfg.WebhookURL != "" {
		pubs = append(pubs, events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, eventInboxSize, logger))
		logger.Info().Str("url", cfg.WebhookURL).Msg("webhook publisher enabled")
	}
	return events.Combine(pubs...)
}

// newEcho installs the global middleware chain. Routes are added by the
// caller.
func newEcho(cfg *config.Config, logger zerolog.Logger, tokens *auth.TokenIssuer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.RequestTimeout(requestTimeout, "/health", "/api/v1/inventory/export"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(tokens))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{Verifier: tokens, Skipper: auth.AuthSkipper}))
	}
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}

func registerRoutes(e *echo.Echo, svcs *services) {
	api := e.Group("/api/v1")
	identity.NewHandler(svcs.identity).RegisterRoutes(api)
	scheduling.NewHandler(svcs.scheduling).RegisterRoutes(api)
	inventory.NewHandler(svcs.inventory).RegisterRoutes(api)
	clinical.NewHandler(svcs.clinical).RegisterRoutes(api)
	billing.NewHandler(svcs.billing).RegisterRoutes(api)
}

func runServer() error {
	ctx := context.Background()
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := newLogger(cfg)
	logger.Info().Msg("connected to database")

	checks := map[string]db.Check{}
	var locker cache.SlotLocker = cache.NoopLocker{}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = cache.NewRedisSlotLocker(rdb, cfg.SlotLockTTL)
		checks["redis"] = cache.Pinger(redis.UniversalClient(rdb))
		logger.Info().Msg("redis slot locking enabled")
	} else {
		logger.Warn().Msg("REDIS_URL not set; slot locking relies on the database index only")
	}

	pub := newPublisher(cfg, logger)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error().Err(err).Msg("event publisher close failed")
		}
	}()

	svcs, err := newServices(cfg, pool, locker, pub)
	if err != nil {
		return err
	}

	e := newEcho(cfg, logger, svcs.tokens)
	e.GET("/health/db", db.HealthHandler(pool, checks))
	registerRoutes(e, svcs)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
