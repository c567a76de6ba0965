package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harvest-hub/harvesthub/internal/app"
	"github.com/harvest-hub/harvesthub/internal/directory"
	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/notify"
	"github.com/harvest-hub/harvesthub/internal/observability"
	"github.com/harvest-hub/harvesthub/internal/platform/cache"
	"github.com/harvest-hub/harvesthub/internal/platform/db"
	"github.com/harvest-hub/harvesthub/internal/settlement"
	"github.com/harvest-hub/harvesthub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("resolve timezone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, commit runs will not be serialised", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()

	farmerRepo := directory.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	payoutRepo := settlement.NewRepository(pool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	var locker settlement.RunLocker
	if redisClient != nil {
		locker = settlement.NewRedisLocker(redisClient)
	}

	settlementService := settlement.NewService(
		logger,
		ledgerRepo,
		payoutRepo,
		farmerRepo,
		jobs.NewNotifier(jobClient),
		locker,
		metrics,
		settlement.ServiceConfig{
			Workers:       cfg.SettlementWorkers,
			CommitTimeout: cfg.CommitTimeout,
			LockTTL:       cfg.RunLockTTL,
			Location:      loc,
		},
	)

	adminAuth := app.AdminAuth(logger, cfg.AdminTokenHash)
	settlementHandler := settlement.NewHandler(logger, settlementService, adminAuth)
	ledgerHandler := ledger.NewHandler(logger, ledgerRepo, loc)

	var smsGateway notify.SMSGateway
	if cfg.SMSProviderURL != "" {
		smsGateway = notify.NewSMSClient(cfg.SMSProviderURL, cfg.SMSAPIKey, cfg.SMSSender)
	} else {
		smsGateway = notify.NewMockGateway(logger)
	}
	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(logger, notifyRepo, farmerRepo, smsGateway)
	notifyHandler := notify.NewHandler(logger, notifyService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		SettlementHandler: settlementHandler,
		LedgerHandler:     ledgerHandler,
		NotifyHandler:     notifyHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
