package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"aviary/internal/amqp"
	"aviary/internal/cache"
	"aviary/internal/cli"
	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/services"
	"aviary/internal/sheets"
	gsheet "aviary/internal/sheets/google"
	ledgermem "aviary/internal/sheets/memory"
	"aviary/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	table := cli.LoadIncubationTable(logger, cfg)

	if cfg.DataBackend != "sqlite" {
		logger.Warn("Worker is running against a process-local backend; it will not see the server's records",
			"backend", cfg.DataBackend)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// The worker consumes sync messages; it never publishes them.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	backend := cli.InitBackend(initCtx, logger, &storeCfg)

	var ledger sheets.LedgerWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(initCtx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			LedgerSheet:     cfg.GoogleLedgerSheet,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Ledger export target", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleLedgerSheet)
	} else {
		ledger = ledgermem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set; ledger rows are kept in memory only")
	}

	var consumer *amqp.Client
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", log.FieldError, err, "exchange", cfg.AMQPExchange)
			os.Exit(1)
		}
		consumer = client
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()
	workerLogger := logger.WithComponent(log.ComponentWorker)

	ledgerWorker := worker.NewLedgerWorker(backend.Store, ledger, cfg.SyncBatchSize, metrics, clock, workerLogger)
	if err := ledgerWorker.StartupSyncCheck(initCtx); err != nil {
		logger.Warn("Startup sync check failed", log.FieldError, err)
	}

	svc := services.New(services.Deps{
		Store:              backend.Store,
		Incubation:         table,
		CriticalWindowDays: cfg.CriticalWindowDays,
		DefaultCurrency:    cfg.DefaultCurrency,
		CacheTTL:           cfg.CacheTTL,
		Clock:              clock,
		Metrics:            metrics,
		Logger:             logger.WithComponent(log.ComponentAlerts),
	})
	cacheManager := cache.NewManager(clock, logger.Logger.With(log.FieldComponent, log.ComponentCache))
	cacheManager.Register(svc.Cache())
	cacheManager.StartCleanup(time.Minute)

	scheduler := worker.NewScheduler(clock, workerLogger,
		worker.Job{
			Name:     "ledger-sweep",
			Interval: cfg.SyncInterval,
			Run: func(ctx context.Context) error {
				_, err := ledgerWorker.ProcessPending(ctx)
				return err
			},
		},
		worker.Job{
			Name:     "expiry-sweep",
			Interval: cfg.ExpirySweepInterval,
			Run: func(ctx context.Context) error {
				_, err := svc.Notifications.Sweep(ctx)
				return err
			},
		},
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler stop error", log.FieldError, err)
		}
		cacheManager.Stop()
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting aviary worker",
		"backend", cfg.DataBackend,
		"sync_interval", cfg.SyncInterval,
		"expiry_sweep_interval", cfg.ExpirySweepInterval,
		"amqp", consumer != nil)

	if consumer != nil {
		go func() {
			if err := consumer.ConsumeLedgerSync(ctx, ledgerWorker.HandleSyncMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("AMQP consumer stopped", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
