package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	temporalworker "go.temporal.io/sdk/worker"

	"example.com/salesync/internal/admin"
	"example.com/salesync/internal/config"
	"example.com/salesync/internal/hubspot"
	"example.com/salesync/internal/kajabi"
	"example.com/salesync/internal/ledger"
	"example.com/salesync/internal/logging"
	"example.com/salesync/internal/pipeline"
	"example.com/salesync/internal/runlog"
	"example.com/salesync/internal/sqliteutil"
)

func main() {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqliteutil.Open(cfg.RunLogPath)
	if err != nil {
		logger.Error("open run log db", "path", cfg.RunLogPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	runs := runlog.NewStore(db)
	if err := runs.Init(ctx); err != nil {
		logger.Error("init run log schema", "error", err)
		os.Exit(1)
	}

	runner := pipeline.NewRunner(
		kajabi.NewClient(cfg.KajabiBaseURL, cfg.KajabiClientID, cfg.KajabiClientSecret),
		hubspot.NewClient(cfg.HubSpotBaseURL, cfg.HubSpotAccessToken),
		ledger.NewStore(cfg.LedgerPath),
		runs,
		cfg.PurchaseCutoff,
		logger,
	)

	var orchestrator pipeline.Orchestrator
	if cfg.TemporalHostPort != "" {
		temporalClient, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
		if err != nil {
			logger.Error("dial temporal", "host_port", cfg.TemporalHostPort, "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()

		w := pipeline.RegisterSyncWorker(temporalClient, runner, logger)
		go func() {
			if err := w.Run(temporalworker.InterruptCh()); err != nil {
				logger.Error("temporal worker stopped", "error", err)
			}
		}()
		orchestrator = pipeline.NewTemporalOrchestrator(temporalClient, logger)
		logger.Info("sync orchestration via temporal", "host_port", cfg.TemporalHostPort)
	} else {
		orchestrator = pipeline.NewLocalOrchestrator(runner, logger)
		logger.Info("sync orchestration in-process")
	}

	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: admin.NewServer(runs, orchestrator, logger).Router(),
	}
	go func() {
		logger.Info("admin API listening", "addr", cfg.AdminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", "error", err)
		}
	}()

	// The scheduler blocks until a shutdown signal arrives: one run at
	// startup, then one per poll interval, overlapping runs skipped.
	pipeline.NewScheduler(orchestrator, cfg.PollInterval, logger).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown failed", "error", err)
	}
	logger.Info("salesync stopped")
}
