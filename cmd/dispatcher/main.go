package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/report-dispatch/internal/config"
	"github.com/kursadbilgin/report-dispatch/internal/handler"
	"github.com/kursadbilgin/report-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/report-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/report-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/report-dispatch/internal/mailer"
	"github.com/kursadbilgin/report-dispatch/internal/observability"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
	"github.com/kursadbilgin/report-dispatch/internal/service"
	"github.com/kursadbilgin/report-dispatch/internal/storage"
	"github.com/kursadbilgin/report-dispatch/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("aws config load failed", zap.Error(err))
	}

	mail, err := mailer.NewSESMailer(awsCfg, cfg.SESFromEmail, cfg.SESFromName)
	if err != nil {
		logger.Fatal("ses mailer initialization failed", zap.Error(err))
	}

	documents, err := storage.NewS3DocumentStore(awsCfg, cfg.S3Bucket)
	if err != nil {
		logger.Fatal("document store initialization failed", zap.Error(err))
	}

	dailyQuota, err := infraredis.NewRedisDailyQuota(rdb, cfg.DailySendCeiling)
	if err != nil {
		logger.Fatal("daily quota initialization failed", zap.Error(err))
	}

	jobRepo := repository.NewGormBatchJobRepo(db)
	entryRepo := repository.NewGormQueueEntryRepo(db)
	uow := repository.NewGormUnitOfWork(db)
	catalog := repository.NewGormDocumentCatalog(db)
	directory := repository.NewGormRecipientDirectory(db)

	grouper, err := service.NewRecipientGrouper(catalog, directory, nil)
	if err != nil {
		logger.Fatal("grouper initialization failed", zap.Error(err))
	}

	tracker, err := service.NewBatchJobTracker(jobRepo, logger)
	if err != nil {
		logger.Fatal("job tracker initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	attachmentTTL := time.Duration(cfg.AttachmentTTLHours) * time.Hour
	worker, err := service.NewDispatchWorker(entryRepo, tracker, documents, mail, attachmentTTL, logger)
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(worker, dailyQuota, cfg.DispatchCron, cfg.DispatchTimezone, cfg.DispatchBatchSize, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	orchestrator, err := service.NewDistributionOrchestrator(grouper, tracker, uow, entryRepo, logger)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterDispatchRoutes(app, orchestrator, scheduler, dailyQuota); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("report-dispatch api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		logger.Info("dispatch scheduler started",
			zap.String("cron", cfg.DispatchCron),
			zap.Int("batchSize", cfg.DispatchBatchSize),
			zap.Int("dailyCeiling", cfg.DailySendCeiling),
		)
		return scheduler.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service terminated", zap.Error(err))
	}

	logger.Info("report-dispatch stopped")
}
