package main

import (
	"context"
	"os"
	"time"

	"householdledger/internal/cli"
	"householdledger/internal/log"
	"householdledger/internal/recurrence"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info", "text").Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentRecurrence)
	logger.Info("Starting recurring-worker", log.FieldOperation, log.OpStartup)

	// Generated transactions go through the ledger service, so they are
	// published like any other write when AMQP is configured.
	amqpClient, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		amqpClient = nil
	}

	app, err := cli.NewApp(cfg, logger, cli.Publisher(amqpClient))
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"data_dir", cfg.DataDir)

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	process(ctx, logger, app.Engine, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete", log.FieldOperation, log.OpShutdown)
			return
		case now := <-ticker.C:
			process(ctx, logger, app.Engine, now)
		}
	}
}

func process(ctx context.Context, logger *log.Logger, engine *recurrence.Engine, now time.Time) {
	res, err := engine.GenerateDueTransactions(ctx, now)
	if err != nil {
		logger.Error("Recurring generation failed", log.FieldError, err)
		return
	}
	logger.Info("Recurring generation complete",
		log.FieldOperation, log.OpGenerate,
		log.FieldGenerated, len(res.Generated),
		"schedules_updated", res.SchedulesUpdated)
}
