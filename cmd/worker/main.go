package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gemvault/gemvault/internal/app"
	"github.com/gemvault/gemvault/internal/billing"
	"github.com/gemvault/gemvault/internal/charges"
	jobmetrics "github.com/gemvault/gemvault/internal/jobs"
	"github.com/gemvault/gemvault/internal/observability"
	"github.com/gemvault/gemvault/internal/platform/cache"
	"github.com/gemvault/gemvault/internal/platform/db"
	"github.com/gemvault/gemvault/internal/shared"
	"github.com/gemvault/gemvault/internal/terms"
	"github.com/gemvault/gemvault/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	billingService := billing.NewService(billing.NewRepository(pool), billing.Options{
		Charges:         charges.NewService(charges.NewRepository(pool), auditLogger, logger),
		Terms:           terms.NewService(terms.NewRepository(pool), auditLogger, logger),
		Audit:           auditLogger,
		Approvals:       shared.NewApprovalRecorder(pool, logger),
		Idempotency:     shared.NewIdempotencyStore(pool),
		Notifier:        jobClient,
		Cache:           cache.NewVersioned(redisClient, "billing:summary", cfg.SummaryCacheTTL),
		Metrics:         observability.NewBillingMetrics(nil),
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	metrics := jobmetrics.NewMetrics(nil)
	sweepJob := jobs.NewOverdueSweepJob(billingService, logger, metrics)
	notifyJob := jobs.NewPaymentNotifyJob(billingService, logger, metrics)

	sweepTask, err := jobs.NewOverdueSweepTask(jobs.OverdueSweepPayload{})
	if err != nil {
		logger.Error("build overdue sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskPaymentNotify, Handler: notifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
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
