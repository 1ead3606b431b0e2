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

	rmhttp "github.com/Strob0t/ReviewMesh/internal/adapter/http"
	"github.com/Strob0t/ReviewMesh/internal/adapter/litellm"
	"github.com/Strob0t/ReviewMesh/internal/adapter/memstore"
	rmnats "github.com/Strob0t/ReviewMesh/internal/adapter/nats"
	"github.com/Strob0t/ReviewMesh/internal/adapter/otel"
	"github.com/Strob0t/ReviewMesh/internal/adapter/postgres"
	"github.com/Strob0t/ReviewMesh/internal/adapter/ristretto"
	"github.com/Strob0t/ReviewMesh/internal/adapter/ws"
	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/logger"
	"github.com/Strob0t/ReviewMesh/internal/middleware"
	"github.com/Strob0t/ReviewMesh/internal/port/approvalstore"
	"github.com/Strob0t/ReviewMesh/internal/resilience"
	"github.com/Strob0t/ReviewMesh/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

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
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
		"llm_routing", cfg.Router.EnableLLMRouting,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Telemetry ---
	otelShutdown, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// Approval persistence: PostgreSQL when a DSN is configured, in-memory
	// otherwise.
	var store approvalstore.Store
	if cfg.Postgres.DSN != "" {
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
	} else {
		slog.Warn("no postgres dsn configured, approvals are not persisted")
		store = memstore.New()
	}

	// NATS worker transport and registry
	transport, err := rmnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer transport.Close()

	// Decision cache
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("decision cache: %w", err)
	}
	defer cache.Close()

	// Reasoning backend
	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Model)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub()
	bc := otel.NewEventObserver(hub, metrics)

	decider := service.NewDecisionExecutor(llm, cfg.Breaker, cfg.LiteLLM.Timeout)

	approvals := service.NewApprovalService(cfg.Approval, store, bc)
	approvals.StartSweeper(ctx)

	router := service.NewRouterService(cfg.Router, decider, cache)
	router.AddOnDecision(metrics.OnDecision)

	engine := service.NewWorkflowEngine(cfg.Workflow, router, transport, transport, approvals, decider, bc)

	// --- HTTP ---
	handlers := rmhttp.NewHandlers(engine, router, approvals, transport)

	r := chi.NewRouter()
	r.Use(rmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rmhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(rmhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	rmhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
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
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
