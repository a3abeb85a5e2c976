package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/larder/internal/api"
	"github.com/hyperengineering/larder/internal/archive"
	"github.com/hyperengineering/larder/internal/config"
	"github.com/hyperengineering/larder/internal/ledger"
	"github.com/hyperengineering/larder/internal/plan"
	"github.com/hyperengineering/larder/internal/reconcile"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/validation"
	"github.com/hyperengineering/larder/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Larder sync server",
	Args:  cobra.NoArgs,
	RunE:  run,
}

// services holds everything wired from one Config.
type services struct {
	store    *store.SQLiteStore
	ledger   ledger.Ledger
	importer *reconcile.Importer
	exporter *reconcile.Exporter
	status   *reconcile.StatusReporter
	archiver archive.Archiver
}

// newServices opens the store and wires the reconciliation engine.
func newServices(cfg *config.Config) (*services, error) {
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(cfg.Ledger.Backend, db, ledger.Options{
		MaxPerUser: cfg.Ledger.MaxPerUser,
		Window:     time.Duration(cfg.Ledger.Window),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	arc, err := archive.New(cfg.Archive)
	if err != nil {
		db.Close()
		return nil, err
	}

	resolver := plan.NewResolver(db, plan.DefaultsFromConfig(cfg.Plans.Limits))
	limits := validation.Limits{
		MaxRecords:  cfg.Import.MaxRecords,
		MaxMessages: cfg.Import.MaxMessages,
	}

	return &services{
		store:    db,
		ledger:   l,
		importer: reconcile.NewImporter(db, resolver, l, reconcile.WithLimits(limits)),
		exporter: reconcile.NewExporter(db, l),
		status:   reconcile.NewStatusReporter(db, l),
		archiver: arc,
	}, nil
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger, logCloser := newLogger(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level, "file", cfg.Log.File)

	// 4. Initialize store, ledger and reconciler
	svc, err := newServices(cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized",
		"path", cfg.Database.Path,
		"ledger", cfg.Ledger.Backend,
		"archive_enabled", cfg.Archive.Enabled(),
	)

	// 5. Initialize HTTP router
	handler := api.NewHandler(api.Deps{
		Importer:     svc.importer,
		Exporter:     svc.exporter,
		Status:       svc.status,
		Plans:        svc.store,
		Stats:        svc.store,
		APIKey:       cfg.Auth.APIKey,
		Version:      Version,
		MaxBodyBytes: cfg.Import.MaxBodyBytes,
	})
	router := api.NewRouter(handler)

	// 6. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 7. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "ledger-pruner",
		worker.NewLedgerPruner(svc.ledger, time.Duration(cfg.Ledger.PruneInterval)).Run)
	if cfg.Archive.Enabled() {
		startWorker(ctx, &wg, "archive-coordinator",
			worker.NewArchiveCoordinator(svc.store, svc.exporter, svc.archiver, time.Duration(cfg.Archive.Interval)).Run)
	}

	// 8. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 9. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 10. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 10a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 10b. Wait for workers to complete
	wg.Wait()

	// 10c. Close store
	if err := svc.store.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
		slog.Debug("worker exited", "worker", name)
	}()
}
