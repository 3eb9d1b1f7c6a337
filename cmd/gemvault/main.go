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

	"github.com/gemvault/gemvault/internal/app"
	"github.com/gemvault/gemvault/internal/audit"
	audithttp "github.com/gemvault/gemvault/internal/audit/http"
	"github.com/gemvault/gemvault/internal/billing"
	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/observability"
	"github.com/gemvault/gemvault/internal/platform/cache"
	"github.com/gemvault/gemvault/internal/platform/db"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/shared"
	"github.com/gemvault/gemvault/internal/terms"
	"github.com/gemvault/gemvault/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	summaryCache := cache.NewVersioned(redisClient, "billing:summary", cfg.SummaryCacheTTL)
	go func() {
		if err := summaryCache.ListenForInvalidation(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("summary cache invalidation listener", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.DefaultPolicy())
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	chargesService := charges.NewService(charges.NewRepository(dbpool), auditLogger, logger)
	termsService := terms.NewService(terms.NewRepository(dbpool), auditLogger, logger)

	billingService := billing.NewService(billing.NewRepository(dbpool), billing.Options{
		Charges:         chargesService,
		Terms:           termsService,
		Audit:           auditLogger,
		Approvals:       approvalRecorder,
		Idempotency:     idempotencyStore,
		Notifier:        jobClient,
		Cache:           summaryCache,
		Metrics:         metrics.Billing(),
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	auditService := audit.NewService(audit.NewRepository(dbpool))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		ChargesHandler:     charges.NewHandler(logger, chargesService, rbacMiddleware),
		TermsHandler:       terms.NewHandler(logger, termsService, rbacMiddleware),
		BillingHandler:     billing.NewHandler(logger, billingService, rbacMiddleware),
		PortalHandler:      billing.NewPortalHandler(logger, billingService, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, auditService, rbacMiddleware, cfg.AuditExportLimit),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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
