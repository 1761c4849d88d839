package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"householdledger/internal/cli"
	"householdledger/internal/config"
	"householdledger/internal/log"
)

var (
	dataDir   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *log.Logger

	rootCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Household ledger with recurring schedules and a budget game",
		Long: `ledger keeps household transactions in monthly JSON shards, generates
recurring transactions from schedules and scores each month against its budget.

Run "ledger serve" for the HTTP API and web client.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (overrides LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(scoreCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	loaded := config.Load()
	if dataDir != "" {
		loaded.DataDir = dataDir
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if logFormat != "" {
		loaded.LogFormat = logFormat
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	logger = cli.SetupLoggerTo(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// openApp builds the stores and, when AMQP is configured, the event
// publisher. The returned func releases both.
func openApp() (*cli.App, func(), error) {
	client, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger events will not be published", log.FieldError, err)
		client = nil
	}

	app, err := cli.NewApp(cfg, logger, cli.Publisher(client))
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close app", log.FieldError, err)
		}
	}, nil
}
