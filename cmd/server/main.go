// InstantAgent - agent registry and chat session server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/averlon/instantagent/internal/api"
	"github.com/averlon/instantagent/internal/backend"
	"github.com/averlon/instantagent/internal/chat"
	"github.com/averlon/instantagent/internal/config"
	"github.com/averlon/instantagent/internal/identity"
	"github.com/averlon/instantagent/internal/middleware"
	"github.com/averlon/instantagent/internal/registry"
	"github.com/averlon/instantagent/internal/store"
	"github.com/averlon/instantagent/internal/tools"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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
	slog.Info("Database connected")

	backendClient := backend.NewClient(cfg.BackendURL, logger)
	// Backend failure at startup is a warning, not a crash: deliveries
	// retry on first use.
	if err := backendClient.Ping(context.Background()); err != nil {
		slog.Warn("Agent backend unreachable at startup", "url", cfg.BackendURL, "error", err)
	} else {
		slog.Info("Agent backend reachable", "url", cfg.BackendURL)
	}

	convlog, err := chat.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = convlog.Close() }()

	// Initialize services.
	classifier := chat.NewClassifier(backendClient, cfg.Classifier, logger)
	delivery := chat.NewDelivery(backendClient, cfg.Delivery, logger)
	hub := registry.NewHub(func() *registry.Registry {
		return registry.New(repo, backendClient, classifier, delivery, cfg.Naming, logger)
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(hub, repo, cfg, convlog, logger)
	agentHandler := api.NewAgentHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler)
	wsHandler := api.NewWebSocketHandler(baseHandler, cfg.FrontendURL)
	healthHandler := api.NewHealthHandler(baseHandler, backendClient)
	toolsHandler := api.NewToolsHandler(baseHandler,
		tools.NewFlightClient(cfg.Tools.FlightAPIKey),
		tools.NewMarketClient(),
		tools.NewMapsClient("instantagent/1.0"),
	)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware())

	healthHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)
	toolsHandler.RegisterRoutes(r)

	// Delivery retries can hold a request for the full send budget, so
	// the write timeout stays above it.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.SendBudget() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
