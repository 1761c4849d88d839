// Package cli provides common CLI initialization utilities shared by
// cmd/ledger, cmd/ledger-worker and cmd/recurring-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"householdledger/internal/amqp"
	"householdledger/internal/budget"
	"householdledger/internal/cache"
	"householdledger/internal/category"
	"householdledger/internal/config"
	"householdledger/internal/ledger"
	"householdledger/internal/log"
	"householdledger/internal/recurrence"
	"householdledger/internal/scoring"
	"householdledger/internal/services"
	"householdledger/internal/storage"
)

// SetupLogger builds the process logger from the configured level and format
// and installs it as the slog default.
func SetupLogger(level, format string) *log.Logger {
	return SetupLoggerTo(level, format, os.Stdout)
}

// SetupLoggerTo is SetupLogger writing to w. The ledger CLI logs to stderr so
// command output stays on stdout.
func SetupLoggerTo(level, format string, w io.Writer) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	logger := log.New(log.Config{
		Level:     lvl,
		Format:    format,
		Component: log.ComponentApp,
		Output:    w,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenJournal opens the SQLite event journal.
func OpenJournal(logger *log.Logger, dbPath string) (*storage.Journal, error) {
	journal, err := storage.NewJournal(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dbPath, err)
	}
	return journal, nil
}

// ConnectAMQP dials the broker. It returns nil without error when no URL is
// configured, which disables event publishing.
func ConnectAMQP(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, ledger events will not be published")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	return client, nil
}

// Publisher adapts an optional client to services.Publisher. A nil client
// yields a nil interface so the ledger service skips publishing.
func Publisher(client *amqp.Client) services.Publisher {
	if client == nil {
		return nil
	}
	return client
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
		}
	}()
	return ctx, cancel
}

// App holds the stores and services built once per process.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	Ledger     *services.LedgerService
	Categories *category.Store
	Budgets    *budget.Store
	Schedules  *recurrence.ScheduleStore
	Engine     *recurrence.Engine
	Scoring    *scoring.Service
	Caches     *cache.Manager
}

// NewApp wires the file-backed stores under cfg.DataDir. A nil publisher
// disables ledger events.
func NewApp(cfg *config.Config, logger *log.Logger, publisher services.Publisher) (*App, error) {
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	storeOpts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.ShardCacheSize > 0 {
		shardCache := ledger.NewShardCache(cfg.ShardCacheSize, cfg.ShardCacheTTL)
		caches.Register(shardCache)
		storeOpts = append(storeOpts, ledger.WithCache(shardCache))
	}
	store := ledger.NewStore(cfg.DataDir, storeOpts...)

	categories, err := category.NewStore(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	budgets := budget.NewStore(cfg.DataDir, logger)
	schedules := recurrence.NewScheduleStore(cfg.DataDir, recurrence.WithStoreLogger(logger))
	svc := services.NewLedgerService(store, publisher, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Ledger:     svc,
		Categories: categories,
		Budgets:    budgets,
		Schedules:  schedules,
		Engine:     recurrence.NewEngine(schedules, svc, logger),
		Scoring:    scoring.NewService(svc, budgets, categories, logger),
		Caches:     caches,
	}, nil
}

// Close releases the publisher held by the ledger service.
func (a *App) Close() error {
	return a.Ledger.Close()
}
