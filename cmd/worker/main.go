package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/campusworks/campusworks/internal/app"
	"github.com/campusworks/campusworks/internal/audit"
	"github.com/campusworks/campusworks/internal/platform/cache"
	"github.com/campusworks/campusworks/internal/platform/db"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	rbacRepo := rbac.NewRepository(pool)
	catalog := rbac.NewCatalog(rbacRepo, redisClient, cfg.CatalogCacheTTL, logger)
	rbacService := rbac.NewService(rbacRepo, catalog)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{Retention: cfg.AuditRetention})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypePushDefaults, Handler: jobs.NewPushDefaultsHandler(rbacService, logger)},
			{Type: jobs.TaskTypeAuditRetention, Handler: jobs.NewAuditRetentionHandler(auditService, cfg.AuditRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
