package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"householdledger/internal/cli"
	"householdledger/internal/log"
	"householdledger/internal/sheets"
	gsheet "householdledger/internal/sheets/google"
	"householdledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info", "text").Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required: ledger-worker consumes ledger events")
		os.Exit(1)
	}

	journal, err := cli.OpenJournal(logger, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open journal", log.FieldError, err)
		os.Exit(1)
	}
	defer journal.Close()

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	var exporter sheets.Exporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewJournalWorker(journal, exporter, cfg.SyncBatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.Consume(gctx, w.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if exporter != nil {
		g.Go(func() error {
			return w.Run(gctx, cfg.SyncInterval)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
