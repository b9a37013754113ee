package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorhub-api/internal/config"
	"github.com/noah-isme/tutorhub-api/internal/database"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/observability"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/router"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, leaderboard cache disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, ledger events stay node-local")
		natsConn = nil
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	observability.RegisterMetrics()
	validate := utils.NewValidator()

	userRepo := repository.NewUserRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	periodService := service.NewPeriodService(periodRepo, validate, activityService, logger)
	balanceService := service.NewBalanceService(balanceRepo, periodService, logger)
	statsService := service.NewStatsService(userRepo, periodService, balanceService, validate, redisClient, cfg.LeaderboardCacheTTL, cfg.LeaderboardDefaultSize, logger)
	eventService := service.NewLedgerEventService(natsConn, cfg.RealtimeChannel, logger)
	ledgerService := service.NewLedgerService(ledgerRepo, userRepo, periodService, balanceService, service.LedgerDependencies{
		Activity:    activityService,
		Leaderboard: statsService,
		Events:      eventService,
	}, validate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventService.Start(ctx)

	healthChecks := map[string]handler.HealthCheckFunc{
		"database": database.PingFunc(db),
	}
	if redisClient != nil {
		healthChecks["redis"] = redisPing(redisClient)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.IsDevelopment()})
	router.Register(app, cfg, router.Dependencies{
		PeriodHandler:       handler.NewPeriodHandler(periodService, logger),
		LedgerHandler:       handler.NewLedgerHandler(ledgerService, router.WriteLimiter(cfg), logger),
		LedgerStreamHandler: handler.NewLedgerStreamHandler(eventService, logger),
		StatsHandler:        handler.NewStatsHandler(statsService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		HealthChecks:        healthChecks,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func redisPing(client *redis.Client) handler.HealthCheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
