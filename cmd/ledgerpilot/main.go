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

	"github.com/ledgerpilot/ledgerpilot/internal/app"
	"github.com/ledgerpilot/ledgerpilot/internal/billing"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/approval"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/customer"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/policy"
	"github.com/ledgerpilot/ledgerpilot/internal/freshbooks"
	"github.com/ledgerpilot/ledgerpilot/internal/observability"
	"github.com/ledgerpilot/ledgerpilot/internal/platform/cache"
	"github.com/ledgerpilot/ledgerpilot/internal/platform/db"
	"github.com/ledgerpilot/ledgerpilot/internal/reminders"
	"github.com/ledgerpilot/ledgerpilot/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	draftRepo := draft.NewPGRepository(dbpool)
	recordRepo := approval.NewPGRecordRepository(dbpool)
	lease := approval.NewRedisLease(redisClient, 30*time.Second)
	gate := approval.NewGate(draftRepo, recordRepo, directory, logger, lease)

	engine := policy.NewEngine(policy.DefaultRegistry(), time.Month(cfg.FiscalYearStartMonth))
	resolver := customer.NewResolver(directory)

	billingService := billing.NewService(engine, resolver, draftRepo, gate, directory, logger)
	billingHandler := billing.NewHandler(logger, billingService)

	reminderRepo := reminders.NewPGRepository(dbpool)
	reminderService := reminders.NewService(reminderRepo, logger)
	reminderHandler := reminders.NewHandler(logger, reminderService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billingHandler,
		RemindersHandler: reminderHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
