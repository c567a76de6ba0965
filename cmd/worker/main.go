package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/harvest-hub/harvesthub/internal/app"
	"github.com/harvest-hub/harvesthub/internal/directory"
	jobmetrics "github.com/harvest-hub/harvesthub/internal/jobs"
	"github.com/harvest-hub/harvesthub/internal/notify"
	"github.com/harvest-hub/harvesthub/internal/platform/db"
	"github.com/harvest-hub/harvesthub/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var smsGateway notify.SMSGateway
	if cfg.SMSProviderURL != "" {
		smsGateway = notify.NewSMSClient(cfg.SMSProviderURL, cfg.SMSAPIKey, cfg.SMSSender)
	} else {
		smsGateway = notify.NewMockGateway(logger)
	}

	farmerRepo := directory.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(logger, notifyRepo, farmerRepo, smsGateway)
	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypePayoutNotify, Handler: jobs.NewPayoutNotifyHandler(logger, notifyService, metrics)},
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
