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
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/consol"
	"github.com/meridian-erp/meridian-erp/internal/instruments"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/lease"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/revenue"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	leaseRepo := lease.NewRepository(pool)
	leaseService := lease.NewService(leaseRepo, ledgerService, auditLogger, lease.Accounts{
		RouAsset:                cfg.LeaseRouAssetAccount,
		Liability:               cfg.LeaseLiabilityAccount,
		Clearing:                cfg.LeaseClearingAccount,
		InterestExpense:         cfg.LeaseInterestAccount,
		DepreciationExpense:     cfg.LeaseDepreciationAccount,
		AccumulatedDepreciation: cfg.LeaseAccumDeprecAccount,
		GainLoss:                cfg.LeaseGainLossAccount,
		Cash:                    cfg.LeaseCashAccount,
	})
	leaseHandler := lease.NewHandler(logger, leaseService)

	revenueRepo := revenue.NewRepository(pool)
	revenueService := revenue.NewService(revenueRepo, ledgerService, auditLogger, revenue.Accounts{
		DeferredRevenue: cfg.RevenueDeferredAccount,
		Revenue:         cfg.RevenueRecognizedAccount,
	})
	revenueHandler := revenue.NewHandler(logger, revenueService)

	consolRepo := consol.NewRepository(pool)
	ratesProvider := consol.NewDBRateProvider(pool)
	consolService := consol.NewService(consolRepo, ratesProvider, redisClient, auditLogger)
	consolHandler := consol.NewHandler(logger, consolService)

	instrumentsRepo := instruments.NewRepository(pool)
	instrumentsService := instruments.NewService(instrumentsRepo, redisClient, auditLogger)
	instrumentsHandler := instruments.NewHandler(logger, instrumentsService)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		LeaseHandler:       leaseHandler,
		RevenueHandler:     revenueHandler,
		ConsolHandler:      consolHandler,
		InstrumentsHandler: instrumentsHandler,
		AuditHandler:       auditHandler,
		JobsHandler:        jobsHandler,
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
