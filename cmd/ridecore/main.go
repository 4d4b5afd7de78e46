package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Aristman/ride-core/internal/adapter/builtin"
	"github.com/Aristman/ride-core/internal/adapter/cachestore"
	rchttp "github.com/Aristman/ride-core/internal/adapter/http"
	"github.com/Aristman/ride-core/internal/adapter/inproc"
	"github.com/Aristman/ride-core/internal/adapter/memstore"
	"github.com/Aristman/ride-core/internal/adapter/natsbus"
	rcotel "github.com/Aristman/ride-core/internal/adapter/otel"
	"github.com/Aristman/ride-core/internal/adapter/postgres"
	"github.com/Aristman/ride-core/internal/adapter/ws"
	"github.com/Aristman/ride-core/internal/config"
	"github.com/Aristman/ride-core/internal/logger"
	"github.com/Aristman/ride-core/internal/port/bus"
	"github.com/Aristman/ride-core/internal/port/executor"
	"github.com/Aristman/ride-core/internal/port/storage"
	"github.com/Aristman/ride-core/internal/resilience"
	"github.com/Aristman/ride-core/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"bus", cfg.Bus.Driver,
		"max_parallel", cfg.Orchestrator.MaxParallel,
	)

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := rcotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}
	metrics, err := rcotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---
	var store storage.Store
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		store = postgres.NewStore(pool)
	default:
		store = memstore.New()
	}

	if cfg.Storage.CacheSizeMB > 0 {
		cached, err := cachestore.Wrap(store, int64(cfg.Storage.CacheSizeMB)<<20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer cached.Close()
		store = cached
	}

	// --- Bus ---
	var mbus bus.Bus
	switch cfg.Bus.Driver {
	case "nats":
		nb, err := natsbus.Connect(cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		mbus = nb
	default:
		mbus = inproc.New()
	}
	defer func() { _ = mbus.Close() }()

	// --- Executors ---
	registry := executor.NewRegistry()
	registry.Register(&builtin.Scanner{})
	registry.Register(&builtin.ReportGenerator{})

	worker := service.NewAgentWorker(cfg.Orchestrator.AgentName, version, registry, mbus, log)
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("agent worker: %w", err)
	}
	defer worker.Stop()

	// --- Services ---
	hub := ws.NewHub()
	defer hub.Close()

	tracker := service.NewProgressTracker(hub, mbus, cfg.Orchestrator.AgentName)
	lifecycle := service.NewLifecycleService(store)
	lifecycle.AddListener(tracker.OnTransition)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	classifier := service.NewClassifierService(service.KeywordClassifier{}, breaker)

	invoker := &service.BusInvoker{
		Bus:     mbus,
		Timeout: cfg.Orchestrator.RequestTimeout,
		Sender:  cfg.Orchestrator.AgentName,
	}
	orch := service.NewOrchestratorService(store, lifecycle, tracker, classifier, invoker, cfg.Orchestrator, metrics, log)

	// --- Retention ---
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go runCleanup(cleanupCtx, store, cfg.Orchestrator)

	// --- HTTP ---
	handlers := rchttp.NewHandlers(orch, store, tracker)

	r := chi.NewRouter()
	r.Use(rchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rchttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(rcotel.HTTPMiddleware(cfg.Logging.Service))
	}

	r.Get("/ws", hub.HandleWS)
	rchttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runCleanup periodically removes finished plans past the retention age.
func runCleanup(ctx context.Context, store storage.Store, cfg config.Orchestrator) {
	if cfg.RetentionAge <= 0 || cfg.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx, cfg.RetentionAge, nil)
			if err != nil {
				slog.Warn("plan cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("cleaned up finished plans", "removed", removed)
			}
		}
	}
}
