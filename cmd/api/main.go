package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldserve/notify-planner/internal/config"
	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/handler"
	"github.com/fieldserve/notify-planner/internal/infra/postgresql"
	"github.com/fieldserve/notify-planner/internal/infra/postgresql/migrations"
	infraredis "github.com/fieldserve/notify-planner/internal/infra/redis"
	"github.com/fieldserve/notify-planner/internal/observability"
	"github.com/fieldserve/notify-planner/internal/queue"
	"github.com/fieldserve/notify-planner/internal/repository"
	"github.com/fieldserve/notify-planner/internal/service"
	"github.com/fieldserve/notify-planner/internal/snapshot"
	"github.com/fieldserve/notify-planner/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	replanLock, err := infraredis.NewReplanLock(rdb, 0)
	if err != nil {
		logger.Fatal("replan lock initialization failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.ReceiptConcurrency, logger)

	backend, err := snapshot.NewBackendClient(cfg.BackendBaseURL)
	if err != nil {
		logger.Fatal("backend client initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	repo := repository.NewGormPlannedNotificationRepo(db)

	policyCfg := domain.PolicyConfig{
		ReminderDaysAhead:    cfg.ReminderDaysAhead,
		ExpirationDayEnabled: cfg.ExpirationDayEnabled,
		MaxRetries:           cfg.MaxRetries,
	}

	lifecycle := service.NewLifecycleService(repo, metrics, logger)
	query := service.NewQueryService(repo)
	statistics := service.NewStatisticsService(repo)
	planner := service.NewPlanner(repo, backend, replanLock, policyCfg, metrics, logger)

	dispatcher, err := service.NewDispatcher(
		repo, publisher,
		time.Duration(cfg.DispatchScanSeconds)*time.Second,
		cfg.DispatchScanLimit,
		metrics, logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	cleaner, err := service.NewCleaner(
		repo,
		time.Duration(cfg.CleanupScanMinutes)*time.Minute,
		time.Duration(cfg.RetentionMaxAgeHours)*time.Hour,
		metrics, logger,
	)
	if err != nil {
		logger.Fatal("cleaner initialization failed", zap.Error(err))
	}

	receipts, err := service.NewReceiptWorker(lifecycle, consumer, cfg.ReceiptConcurrency, logger)
	if err != nil {
		logger.Fatal("receipt worker initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, lifecycle, query); err != nil {
		logger.Fatal("failed to register notification routes", zap.Error(err))
	}
	if err := handler.RegisterPlanningRoutes(app, planner, statistics); err != nil {
		logger.Fatal("failed to register planning routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Start(groupCtx)
	})
	g.Go(func() error {
		return cleaner.Start(groupCtx)
	})
	g.Go(func() error {
		return receipts.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("notify-planner api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service terminated with error", zap.Error(err))
	}
	logger.Info("notify-planner stopped")
}
