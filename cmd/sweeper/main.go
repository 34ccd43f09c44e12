// Command sweeper runs the overdue sweep on a schedule and serves /healthz
// and /metrics. Membership operations are not exposed here; route handlers or
// jobs that need them build a service.MembershipService over the same store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mmynk/streamshare/internal/catalog"
	"github.com/mmynk/streamshare/internal/config"
	"github.com/mmynk/streamshare/internal/metrics"
	"github.com/mmynk/streamshare/internal/ops"
	"github.com/mmynk/streamshare/internal/scheduler"
	"github.com/mmynk/streamshare/internal/service"
	"github.com/mmynk/streamshare/internal/storage/postgres"
	"github.com/mmynk/streamshare/internal/storage/sqlite"
	"github.com/mmynk/streamshare/internal/storage/sqlstore"
	"github.com/mmynk/streamshare/pkg/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		slog.Error("Invalid LOG_LEVEL", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.DBDriver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(store.DB(), cfg.DBDriver),
	)

	admins := service.NewEmailAdmins(store, cfg.AdminEmails)
	access := service.NewAccessService(store, service.Options{
		Windows:            cfg.Windows,
		MaxConflictRetries: cfg.MaxConflictRetries,
		Admins:             admins,
		Metrics:            metrics.New(reg),
		Logger:             slog.Default(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CatalogFile != "" {
		services, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			slog.Error("Failed to load streaming catalog", "path", cfg.CatalogFile, "error", err)
			os.Exit(1)
		}
		if _, err := catalog.Seed(ctx, store, services, slog.Default()); err != nil {
			slog.Error("Failed to seed streaming catalog", "error", err)
			os.Exit(1)
		}
	}

	if missing, err := admins.Unresolved(ctx); err != nil {
		slog.Warn("Failed to resolve admin emails", "error", err)
	} else if len(missing) > 0 {
		slog.Warn("Admin emails without an account", "emails", missing)
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           ops.NewRouter(reg, store.DB(), slog.Default()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Ops server starting", "address", cfg.MetricsAddr, "routes", "/metrics /healthz")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Ops server failed", "error", err)
				stop()
			}
		}()
	}

	runner := scheduler.NewRunner(access, slog.Default(), cfg.SweepInterval, 0)
	runner.Start()

	<-ctx.Done()
	slog.Info("Shutting down")
	runner.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server shutdown failed", "error", err)
		}
	}
}

func openStore(cfg *config.Config) (*sqlstore.Store, error) {
	if cfg.DBDriver == "postgres" {
		return postgres.New(cfg.DatabaseDSN)
	}
	return sqlite.New(cfg.DBPath)
}
