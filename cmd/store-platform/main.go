// Package main is the entry point for the store-platform service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/SHESHU45/UrumiAssignment/api"
	"github.com/SHESHU45/UrumiAssignment/internal/admission"
	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/cluster"
	"github.com/SHESHU45/UrumiAssignment/internal/config"
	"github.com/SHESHU45/UrumiAssignment/internal/deployer"
	"github.com/SHESHU45/UrumiAssignment/internal/events"
	"github.com/SHESHU45/UrumiAssignment/internal/manager"
	"github.com/SHESHU45/UrumiAssignment/internal/metrics"
	"github.com/SHESHU45/UrumiAssignment/internal/reconcile"
	"github.com/SHESHU45/UrumiAssignment/internal/server"
	"github.com/SHESHU45/UrumiAssignment/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const httpShutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "store-platform").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting store-platform")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("store-platform exited with error")
	}
	logger.Info().Msg("server stopped gracefully")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	dialect := store.Dialect(cfg.DBDriver)
	db, err := store.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	result, err := store.Migrate(db, dialect)
	if err != nil {
		return fmt.Errorf("running database migrations: %w", err)
	}
	logger.Info().Uint("version", result.Version).Bool("dirty", result.Dirty).Msg("database migration complete")

	var repo *store.SQLStore
	if dialect == store.DialectPostgres {
		repo = store.NewPostgresStore(db)
	} else {
		repo = store.NewSQLiteStore(db)
	}

	clientset, err := cluster.NewClientset(cfg.Kubeconfig)
	if err != nil {
		return err
	}
	kube := cluster.New(clientset, cluster.Config{NamespaceDeleteWait: cfg.NamespaceDeleteTimeout}, log.Logger)

	helm := deployer.NewHelm(deployer.ExecRunner{}, deployer.Config{
		Binary:           cfg.HelmBinary,
		StoreDomain:      cfg.StoreDomain,
		HelmTimeout:      cfg.HelmTimeout,
		CommandTimeout:   cfg.HelmCommandTimeout,
		UninstallTimeout: cfg.UninstallTimeout,
	}, log.Logger)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, natsErr := events.NewNATSPublisher(ctx, events.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          "store-platform",
			SubjectPrefix: cfg.NATSSubjectPrefix,
		}, log.Logger)
		if natsErr != nil {
			return fmt.Errorf("connecting lifecycle event publisher: %w", natsErr)
		}
		publisher = natsPublisher
		logger.Info().Str("subject_prefix", cfg.NATSSubjectPrefix).Msg("publishing lifecycle events to NATS")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.New()
	}
	auditor := audit.NewLogger(repo, log.Logger)

	mgr := manager.New(repo, kube, helm, catalog, admission.New(cfg.MaxConcurrentProvisions), manager.Config{
		NamespacePrefix:       cfg.NamespacePrefix,
		StoreDomain:           cfg.StoreDomain,
		DefaultEngine:         cfg.DefaultEngine,
		MaxTotalStores:        cfg.MaxTotalStores,
		ProvisioningTimeout:   cfg.ProvisioningTimeout,
		ReadinessPollInterval: cfg.ReadinessPollInterval,
		DrainTimeout:          cfg.ShutdownDrainTimeout,
	},
		manager.WithAuditor(auditor),
		manager.WithPublisher(publisher),
		manager.WithMetrics(recorder),
		manager.WithLogger(log.Logger),
	)

	reconciler := reconcile.New(repo, kube, catalog, reconcile.Config{
		Interval:            cfg.ReconcileInterval,
		ProvisioningTimeout: cfg.ProvisioningTimeout,
		StoreDomain:         cfg.StoreDomain,
	},
		reconcile.WithPublisher(publisher),
		reconcile.WithMetrics(recorder),
		reconcile.WithLogger(log.Logger),
	)

	srv := server.New(mgr, repo, server.Config{
		DashboardURL:   cfg.DashboardURL,
		StoreDomain:    cfg.StoreDomain,
		MetricsEnabled: cfg.MetricsEnabled,
	}, version, commit, buildDate,
		server.WithOpenAPISpec(api.OpenAPISpec),
		server.WithMetrics(recorder),
		server.WithAuditor(auditor),
		server.WithReconciler(reconciler),
		server.WithLogger(log.Logger),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", serveErr)
		}
		return nil
	})

	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		reconciler.Run(reconcileCtx)
	}()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
		}

		stopReconciler()
		<-reconcilerDone

		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainTimeout+httpShutdownTimeout)
		defer drainCancel()
		if drainErr := mgr.Shutdown(drainCtx); drainErr != nil {
			logger.Error().Err(drainErr).Msg("workflows did not stop cleanly")
		}
		return nil
	})

	return g.Wait()
}
