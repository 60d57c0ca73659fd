package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hotwellkz/app122/internal/app"
	"github.com/hotwellkz/app122/internal/platform/cache"
	"github.com/hotwellkz/app122/internal/platform/db"
	"github.com/hotwellkz/app122/internal/roster"
	"github.com/hotwellkz/app122/jobs"
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

	publisher := roster.NewPublisher(redisClient, cfg.RosterChannel)

	// Zero-valued payload times let the handlers substitute the run time.
	reconcileTask, err := jobs.NewRosterReconcileTask(time.Time{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	purgeTask, err := jobs.NewSessionsPurgeTask(time.Time{})
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRosterReconcile, Handler: jobs.NewRosterReconcileHandler(logger, publisher)},
			{Type: jobs.TaskSessionsPurge, Handler: jobs.NewSessionsPurgeHandler(logger, pool)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
