// Package main is the entry point for the advisory API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/config"
	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/handler"
	"github.com/plutus-ai/plutus/internal/llm"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/middleware"
	natsclient "github.com/plutus-ai/plutus/internal/nats"
	"github.com/plutus-ai/plutus/internal/orchestrator"
	"github.com/plutus-ai/plutus/internal/service"
	"github.com/plutus-ai/plutus/internal/usercontext"
	"github.com/plutus-ai/plutus/pkg/logger"
	"github.com/plutus-ai/plutus/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting advisory API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "plutus-advisor", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// The append-only store: JetStream when NATS is reachable, otherwise
	// in-memory for local runs.
	var store memory.Store
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("NATS unavailable, using in-memory store", zap.Error(err))
		}
	}
	if natsClient != nil {
		defer natsClient.Close()
		streamStore := memory.NewStreamStore(natsClient)
		if err := streamStore.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		store = streamStore
	} else {
		store = memory.NewMemStore()
	}

	var llmClient llm.Client
	var llmErr error
	switch {
	case cfg.AnthropicAPIKey != "" && cfg.DefaultLLM != string(llm.ProviderOpenAI):
		llmClient, llmErr = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, llmErr = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	if llmErr != nil {
		log.Warn("failed to create completion client, narratives use templates", zap.Error(llmErr))
		llmClient = nil
	}
	llmClient = llm.WithTimeout(llmClient, cfg.LLMTimeout)

	provider := finance.NewStaticProvider()
	builder := usercontext.NewBuilder(provider, store, cfg.ContextTTL, log)

	agents := []agent.Agent{
		agent.NewFinancialAnalyzer(llmClient),
		agent.NewGoalExtractor(),
		agent.NewRiskAssessor(llmClient),
		agent.NewRecommender(llmClient),
	}
	agentNames := make([]agent.Name, len(agents))
	for i, a := range agents {
		agentNames[i] = a.Name()
	}

	routingCfg := orchestrator.DefaultRoutingConfig()
	if cfg.RoutingConfigPath != "" {
		routingCfg, err = orchestrator.LoadRoutingConfig(cfg.RoutingConfigPath)
		if err != nil {
			log.Error("failed to load routing config", zap.Error(err))
			os.Exit(1)
		}
	}
	router, err := orchestrator.NewRouter(routingCfg, agentNames, nil)
	if err != nil {
		log.Error("invalid routing config", zap.Error(err))
		os.Exit(1)
	}

	orch := orchestrator.New(router, agents, builder, store, cfg.TurnTimeout, log)

	sessions := service.NewSessionRegistry(cfg.SessionIdleTimeout, log)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.RunSweeper(sweepCtx, time.Minute)

	advisorSvc := service.NewAdvisorService(sessions, orch, builder, store, log)

	healthHandler := handler.NewHealthHandler(natsClient)
	sessionHandler := handler.NewSessionHandler(advisorSvc, log)
	contextHandler := handler.NewContextHandler(advisorSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Start)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", sessionHandler.End)
				r.Get("/messages", sessionHandler.ListMessages)
				r.Post("/messages", sessionHandler.SendMessage)
			})
		})

		r.Get("/context", contextHandler.Get)
		r.Post("/context/refresh", contextHandler.Refresh)
		r.Get("/insights", contextHandler.Insights)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
