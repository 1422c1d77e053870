package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/consol"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/lease"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)

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

	consolRepo := consol.NewRepository(pool)
	ratesProvider := consol.NewDBRateProvider(pool)
	consolService := consol.NewService(consolRepo, ratesProvider, redisClient, auditLogger)

	consolJob := jobs.NewConsolidationRunJob(consolService, logger, metrics)
	leaseJob := jobs.NewLeaseScheduleJob(leaseService, logger, metrics)

	consolTask, err := jobs.NewConsolidationRunTask(0, "")
	if err != nil {
		logger.Error("build consolidation task", slog.Any("error", err))
		os.Exit(1)
	}
	leaseTask, err := jobs.NewLeaseScheduleTask(0)
	if err != nil {
		logger.Error("build lease schedule task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidationRun, Handler: consolJob.Handle},
			{Type: jobs.TaskLeaseSchedule, Handler: leaseJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 1 * *", Task: consolTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: leaseTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
