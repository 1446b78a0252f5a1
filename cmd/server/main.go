// livesync - live collaborative editing server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ashureev/livesync/internal/api"
	"github.com/ashureev/livesync/internal/config"
	"github.com/ashureev/livesync/internal/housekeeping"
	"github.com/ashureev/livesync/internal/identity"
	"github.com/ashureev/livesync/internal/metrics"
	"github.com/ashureev/livesync/internal/middleware"
	"github.com/ashureev/livesync/internal/session"
	"github.com/ashureev/livesync/internal/store"
	"github.com/ashureev/livesync/internal/watcher"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"workspace", cfg.WorkspaceRoot,
		"session_ttl", cfg.Session.TTL,
		"expiry_enforced", cfg.Session.ExpiryEnforced)

	// Metrics.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promReg)

	// Event journal.
	var (
		repo    *store.SQLiteStore
		journal *store.Journal
	)
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			slog.Error("Failed to create database directory", "error", err)
			os.Exit(1)
		}
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()

		if err := repo.Ping(context.Background()); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		journal = store.NewJournal(repo, cfg.Journal.QueueSize, logger)
		slog.Info("Event journal enabled", "db_path", cfg.DBPath)
	}

	// Workspace watcher.
	ws, err := watcher.NewWorkspace(cfg.WorkspaceRoot)
	if err != nil {
		slog.Error("Failed to resolve workspace", "error", err)
		os.Exit(1)
	}
	opts := session.Options{
		Host:            cfg.GatewayHost,
		HostName:        cfg.Session.HostName,
		HostEmail:       cfg.Session.HostEmail,
		TTL:             cfg.Session.TTL,
		QueueSize:       cfg.Gateway.SendQueueSize,
		MessageRate:     cfg.Gateway.MessageRate,
		MessageBurst:    cfg.Gateway.MessageBurst,
		MaxMessageBytes: cfg.Gateway.MaxMessageBytes,
		AllowedOrigins:  cfg.Gateway.AllowedOrigins,
		Resolver:        ws,
		Metrics:         collector,
		Logger:          logger,
	}
	if journal != nil {
		opts.Journal = journal
	}

	if cfg.Watch.Enabled {
		fw, err := watcher.New(watcher.Options{
			Root:     ws.Root,
			Debounce: cfg.Watch.Debounce,
			Ignore:   cfg.Watch.Ignore,
			Logger:   logger,
		})
		if err != nil {
			slog.Error("Failed to create workspace watcher", "error", err)
			os.Exit(1)
		}
		if err := fw.Start(); err != nil {
			slog.Error("Failed to start workspace watcher", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := fw.Close(); closeErr != nil {
				slog.Error("Failed to close workspace watcher", "error", closeErr)
			}
		}()
		opts.Feed = fw
	}

	registry := session.NewRegistry(opts)

	// Handlers.
	baseHandler := api.NewHandler(registry, nil)
	var db api.Pinger
	if journal != nil {
		baseHandler = api.NewHandler(registry, journal)
		db = repo
	}
	sessionHandler := api.NewSessionHandler(baseHandler)
	healthHandler := api.NewHealthHandler(registry, db)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.Gateway.AllowedOrigins))
	r.Use(identity.Middleware)

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler(promReg))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start expiry sweeper.
	if cfg.Session.ExpiryEnforced {
		sweep := housekeeping.SweepConfig{
			Interval: cfg.Session.SweepInterval,
			Logger:   logger,
		}
		if journal != nil {
			sweep.Journal = journal
			sweep.JournalRetention = cfg.Journal.Retention
		}
		housekeeping.StartSweeper(ctx, registry, sweep)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Stopping sessions closes every gateway before the journal drains.
	if err := registry.Close(); err != nil {
		slog.Error("Failed to stop sessions", "error", err)
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			slog.Error("Failed to close journal", "error", err)
		}
	}

	slog.Info("Server stopped successfully")
}
