package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/api"
	"recon-orchestrator/internal/cache"
	"recon-orchestrator/internal/config"
	"recon-orchestrator/internal/decision"
	"recon-orchestrator/internal/executor"
	"recon-orchestrator/internal/monitor"
	"recon-orchestrator/internal/queue"
	"recon-orchestrator/internal/runner"
	"recon-orchestrator/internal/storage"
	"recon-orchestrator/internal/tool"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	// Env overrides live here, not in the config package.
	if port := os.Getenv("PORT"); port != "" {
		if p, perr := strconv.Atoi(port); perr == nil {
			cfg.Server.Port = p
			log.Info().Int("port", p).Msg("using port from environment")
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitor.NewMetrics()
	tracer := monitor.NewTracer()
	registry := tool.NewRegistry()

	// Tool runner (containerd when reachable, host exec otherwise)
	backend, err := runner.NewBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("no tool backend available")
	}
	if cr, ok := backend.(*runner.ContainerRunner); ok && cfg.Runner.PrefetchImages {
		go cr.Prefetch(ctx, registry.Images())
	}

	// Database (optional — runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, persistence disabled")
		} else {
			defer db.Close()
		}
	}

	var creds executor.CredentialStore
	var auditWriter *storage.AuditWriter
	var store queue.Store
	if db != nil {
		creds = db.Credentials()
		auditWriter = storage.NewAuditWriter(db, 10000)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
		store = auditWriter
	}

	// Result cache with background expiry sweep
	resultCache := cache.New(cfg.Cache.SweepInterval, metrics)
	resultCache.Start()
	defer resultCache.Stop()

	// Tool executor
	exec := executor.New(registry, resultCache, backend, creds, metrics, tracer, executor.Options{
		ToolTimeout:    cfg.Runner.ToolTimeout,
		StandardTTL:    cfg.Cache.StandardTTL,
		ExtendedTTL:    cfg.Cache.ExtendedTTL,
		RateLimitedTTL: cfg.Cache.RateLimitedTTL,
	})

	// Scheduling queue
	q := queue.New(exec, queue.Options{
		Ceiling:   cfg.Queue.MaxConcurrent,
		MaxQueued: cfg.Queue.MaxQueued,
		Creds:     creds,
		Store:     store,
		Metrics:   metrics,
	})
	q.Start(ctx)

	// Decision gate (optional — requires an API key for the reasoner)
	var gate *decision.Gate
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		reasoner, rerr := decision.NewOpenAIReasoner(decision.ReasonerConfig{
			APIKey:      key,
			Model:       cfg.Decision.Model,
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			MaxTokens:   cfg.Decision.MaxTokens,
			Temperature: cfg.Decision.Temperature,
		})
		if rerr != nil {
			log.Warn().Err(rerr).Msg("reasoner unavailable, decision endpoint disabled")
		} else {
			gate = decision.NewGate(reasoner, metrics, tracer)
		}
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, decision endpoint disabled")
	}

	handlers := api.NewHandlers(q, gate, registry, db)
	server := api.NewServer(cfg, handlers, backend, db, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		if err := q.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("queue drain timed out")
		}
		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("backend close error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("decision_enabled", gate != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
