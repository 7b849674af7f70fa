package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ledgerpilot/ledgerpilot/internal/app"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/freshbooks"
	"github.com/ledgerpilot/ledgerpilot/internal/platform/cache"
	"github.com/ledgerpilot/ledgerpilot/internal/platform/db"
	"github.com/ledgerpilot/ledgerpilot/jobs"
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

	tokenStore := freshbooks.NewRedisTokenStore(redisClient)
	tokens := freshbooks.NewTokenManager(tokenStore, &http.Client{Timeout: cfg.InvoicingTimeout},
		cfg.InvoicingTokenURL, cfg.InvoicingClientID, cfg.InvoicingClientSecret, logger)
	directory := freshbooks.New(freshbooks.Config{
		BaseURL:    cfg.InvoicingBaseURL,
		AccountID:  cfg.InvoicingAccountID,
		HTTPClient: &http.Client{Timeout: cfg.InvoicingTimeout},
		Tokens:     tokens,
		Logger:     logger,
	})

	draftRepo := draft.NewPGRepository(pool)
	syncer := jobs.NewSyncer(draftRepo, directory, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStatusSync, Handler: syncer.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StatusSyncCron, Task: jobs.NewStatusSyncTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
