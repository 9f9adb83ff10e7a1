package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurement/internal/app"
	jobmetrics "github.com/odyssey-erp/procurement/internal/jobs"
	"github.com/odyssey-erp/procurement/internal/masterdata"
	"github.com/odyssey-erp/procurement/internal/platform/cache"
	"github.com/odyssey-erp/procurement/internal/platform/db"
	"github.com/odyssey-erp/procurement/internal/procurement"
	"github.com/odyssey-erp/procurement/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	snapshots := cache.NewSnapshots(redisClient, cfg.SnapshotTTL)
	repo := procurement.NewRepository(pool, masterdata.NewCache(redisClient, cfg.MasterDataCacheTTL, logger))
	service := procurement.NewService(repo, procurement.NewValidator(cfg.Limits(), logger), procurement.ServiceConfig{
		Snapshots: snapshots,
		Logger:    logger,
	})

	metrics := jobmetrics.NewMetrics(nil)
	refreshJob := jobs.NewExposureRefreshJob(service, snapshots, logger, metrics)
	notifier := jobs.NewStatusNotifier(logger, nil)

	refreshTask, err := jobs.NewExposureRefreshTask(jobs.ExposureRefreshPayload{})
	if err != nil {
		logger.Error("build exposure refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExposureRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskRequisitionStatusChanged, Handler: notifier.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.ExposureRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
