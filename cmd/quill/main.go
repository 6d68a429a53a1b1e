package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	qhttp "github.com/quillhq/quill/internal/adapter/http"
	qmcp "github.com/quillhq/quill/internal/adapter/mcp"
	qnats "github.com/quillhq/quill/internal/adapter/nats"
	"github.com/quillhq/quill/internal/adapter/openai"
	qotel "github.com/quillhq/quill/internal/adapter/otel"
	"github.com/quillhq/quill/internal/adapter/postgres"
	"github.com/quillhq/quill/internal/adapter/wikipedia"
	"github.com/quillhq/quill/internal/adapter/ws"
	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/logger"
	"github.com/quillhq/quill/internal/middleware"
	"github.com/quillhq/quill/internal/resilience"
	"github.com/quillhq/quill/internal/scoring"
	"github.com/quillhq/quill/internal/service"
	"github.com/quillhq/quill/internal/worker"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"config_file", cfgPath,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := qotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := qotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := qnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// --- Pipeline stages ---
	llmBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	model := openai.NewClient(cfg.OpenAI)
	model.SetBreaker(llmBreaker)

	knowledgeBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	searcher := wikipedia.NewClient(cfg.Wikipedia)
	searcher.SetBreaker(knowledgeBreaker)

	steps := []agent.Step{
		agent.NewResearchStep(searcher, model, cfg.Research),
		agent.NewWriterStep(model, cfg.Writer),
	}

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	pipelineSvc := service.NewPipelineService(store, queue, hub, steps, scoring.New(cfg.Scoring), cfg.Pipeline)
	pipelineSvc.SetMetrics(metrics)

	// --- Workers ---
	workers := worker.NewPool(queue, pipelineSvc, cfg.Pipeline.MaxConcurrent)
	stopWorkers, err := workers.Start(ctx)
	if err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	defer stopWorkers()

	// --- HTTP ---
	handlers := &qhttp.Handlers{Pipeline: pipelineSvc}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(qhttp.Logger)
	r.Use(qotel.HTTPMiddleware)
	r.Use(qhttp.SecurityHeaders)
	r.Use(qhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler(holder, queue, hub, llmBreaker, knowledgeBreaker))

	// WebSocket and MCP connections are long-lived, so the request timeout
	// and rate limit apply only to the REST API group.
	r.Get("/ws", hub.HandleWS)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		qhttp.MountRoutes(r, handlers)
	})

	if cfg.MCP.Enabled {
		mcpSrv := qmcp.NewServer(qmcp.ServerConfig{
			Name:    cfg.Logging.Service,
			Version: version,
			Token:   cfg.MCP.Token,
		}, qmcp.ServerDeps{Pipeline: pipelineSvc})
		r.Mount("/mcp", mcpSrv.Handler())
		slog.Info("mcp server mounted", "path", "/mcp")
	}

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Reload config on SIGHUP.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			slog.Info("config reloaded", "config_file", cfgPath)
		}
	}()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain", "error", err)
	}
	return nil
}

// healthHandler returns an http.HandlerFunc reporting service health and
// current collaborator state. Secrets never appear in the response.
func healthHandler(holder *config.Holder, queue *qnats.Queue, hub *ws.Hub, llmBreaker, knowledgeBreaker *resilience.Breaker) http.HandlerFunc {
	type healthStatus struct {
		Status           string `json:"status"`
		Version          string `json:"version"`
		NATS             string `json:"nats"`
		NATSConnected    bool   `json:"nats_connected"`
		OpenAIURL        string `json:"openai_url"`
		WikipediaURL     string `json:"wikipedia_url"`
		LLMBreaker       string `json:"llm_breaker"`
		KnowledgeBreaker string `json:"knowledge_breaker"`
		WSClients        int    `json:"ws_clients"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := holder.Get()

		status := healthStatus{
			Status:           "ok",
			Version:          version,
			NATS:             cfg.NATS.URL,
			NATSConnected:    queue.IsConnected(),
			OpenAIURL:        cfg.OpenAI.URL,
			WikipediaURL:     cfg.Wikipedia.URL,
			LLMBreaker:       llmBreaker.State(),
			KnowledgeBreaker: knowledgeBreaker.State(),
			WSClients:        hub.ConnectionCount(),
		}
		if !status.NATSConnected {
			status.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
