package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "householdledger/internal/http"
	"householdledger/internal/log"
	"householdledger/internal/recurrence"
	"householdledger/web"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run recurring generation",
		Long: `Start the HTTP server on PORT. Before accepting requests every schedule is
caught up; afterwards schedules are checked every RECURRING_INTERVAL.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, closeApp, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp()

	if cfg.RecurringInServer {
		runRecurrence(ctx, app.Engine, time.Now())
	} else {
		logger.Info("Recurring generation left to recurring-worker", "recurring_in_server", false)
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Static:             staticFiles(cfg.StaticDir),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Ready:              dataDirReady(cfg.DataDir),
	}, apphttp.Deps{
		Ledger:     app.Ledger,
		Categories: app.Categories,
		Budgets:    app.Budgets,
		Engine:     app.Engine,
		Scoring:    app.Scoring,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ledger server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		return nil
	})

	if cfg.RecurringInServer {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.RecurringInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case now := <-ticker.C:
					runRecurrence(gctx, app.Engine, now)
				}
			}
		})
	}

	if app.Caches.Len() > 0 {
		g.Go(func() error {
			return app.Caches.Run(gctx, cfg.ShardCacheTTL)
		})
	}

	err = g.Wait()
	logger.Info("Server stopped", log.FieldOperation, log.OpShutdown)
	return err
}

// runRecurrence runs one catch-up pass. Failures are logged; the next tick
// retries.
func runRecurrence(ctx context.Context, engine *recurrence.Engine, now time.Time) {
	res, err := engine.GenerateDueTransactions(ctx, now)
	if err != nil {
		logger.Error("Recurring generation failed", log.FieldOperation, log.OpGenerate, log.FieldError, err)
		return
	}
	if len(res.Generated) > 0 {
		logger.Info("Recurring generation complete",
			log.FieldOperation, log.OpGenerate,
			log.FieldGenerated, len(res.Generated),
			"schedules_updated", res.SchedulesUpdated)
	}
}

// staticFiles serves dir when it exists and the bundled client otherwise.
func staticFiles(dir string) fs.FS {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		logger.Info("Serving web client from directory", "static_dir", dir)
		return os.DirFS(dir)
	}
	return web.Static()
}

func dataDirReady(dir string) func(context.Context) error {
	return func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}
