// Agent Console - chat front end and Mission Control for ADK agents.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/agent-console/internal/agents"
	"github.com/ashureev/agent-console/internal/api"
	"github.com/ashureev/agent-console/internal/chat"
	"github.com/ashureev/agent-console/internal/config"
	"github.com/ashureev/agent-console/internal/history"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/instructions"
	"github.com/ashureev/agent-console/internal/janitor"
	"github.com/ashureev/agent-console/internal/live"
	"github.com/ashureev/agent-console/internal/middleware"
	"github.com/ashureev/agent-console/internal/orchestrator"
	"github.com/ashureev/agent-console/internal/profile"
	"github.com/ashureev/agent-console/internal/store"
	"github.com/ashureev/agent-console/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const chatBurst = 5

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	registry, err := loadAgents(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to load agents", "error", err)
		os.Exit(1)
	}
	slog.Info("Agents loaded", "agents", registry.Names())

	bucket, closeBucket, err := openInstructionsBucket(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open instructions bucket", "error", err)
		os.Exit(1)
	}
	defer closeBucket()

	pages, err := web.NewRenderer()
	if err != nil {
		slog.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	profiles := profile.NewStore(repo, logger)
	orch := orchestrator.NewClient(orchestrator.Config{URL: cfg.Orchestrator.URL, Timeout: cfg.Orchestrator.Timeout}, logger)
	fetcher := history.NewFetcher(history.Config{BaseURL: cfg.SessionServer.URL, Timeout: cfg.SessionServer.Timeout}, logger)
	instr := instructions.NewClient(bucket, cfg.Instructions.BaseFolder, cfg.Instructions.Timeout, logger)
	hub := live.NewHub(logger)
	controller := chat.NewController(profiles, orch, fetcher, registry, hub, logger)
	limiter := api.NewRateLimiter(cfg.ChatRatePerMinute, chatBurst)

	// Initialize handlers.
	baseHandler := api.NewHandler(pages, logger)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	chatHandler := api.NewChatHandler(baseHandler, controller, limiter)
	missionHandler := api.NewMissionHandler(baseHandler, instr, registry)
	wsHandler := live.NewHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/static/*", http.StripPrefix("/static/", web.StaticHandler()))

	// Browser routes carry the anonymous profile and session identity.
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		r.Use(identity.Middleware(cfg.IsDevelopment()))

		chatHandler.RegisterRoutes(r)
		missionHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	// Chat turns can take as long as the orchestrator timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout for WebSocket connections
		IdleTimeout:  120 * time.Second,
	}

	// Start janitor.
	janitor.Start(ctx, repo, janitor.Evicters{controller, limiter}, janitor.Config{
		Interval:   cfg.JanitorInterval,
		StateIdle:  cfg.ChatStateIdleTTL,
		ProfileTTL: cfg.ProfileTTL,
	})

	// Start optional gRPC health server.
	var grpcHealth *api.GRPCHealth
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "port", cfg.GRPCHealthPort, "error", err)
			os.Exit(1)
		}
		grpcHealth = api.NewGRPCHealth(repo, 15*time.Second)
		go grpcHealth.Run(ctx)
		go func() {
			slog.Info("gRPC health listening", "addr", lis.Addr().String())
			if err := grpcHealth.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
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

	hub.CloseAll()
	if grpcHealth != nil {
		grpcHealth.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// loadAgents builds the agent registry from AGENTS_FILE (watched for edits)
// or from the AGENTS list.
func loadAgents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agents.Registry, error) {
	if cfg.AgentsFile == "" {
		return agents.NewRegistry(cfg.Agents)
	}
	registry, err := agents.LoadFile(cfg.AgentsFile)
	if err != nil {
		return nil, err
	}
	if err := registry.Watch(ctx, cfg.AgentsFile, logger); err != nil {
		slog.Warn("Agents file will not be reloaded", "path", cfg.AgentsFile, "error", err)
	}
	return registry, nil
}

// openInstructionsBucket selects GCS when a bucket is configured, otherwise a
// local directory.
func openInstructionsBucket(ctx context.Context, cfg *config.Config) (instructions.Bucket, func(), error) {
	if cfg.Instructions.UsesGCS() {
		b, err := instructions.NewGCSBucket(ctx, cfg.Instructions.Bucket)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Instructions stored in GCS", "bucket", cfg.Instructions.Bucket, "folder", cfg.Instructions.BaseFolder)
		return b, func() {
			if err := b.Close(); err != nil {
				slog.Error("Failed to close storage client", "error", err)
			}
		}, nil
	}

	b, err := instructions.NewDirBucket(cfg.Instructions.LocalDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Instructions stored on disk", "dir", cfg.Instructions.LocalDir, "folder", cfg.Instructions.BaseFolder)
	return b, func() {}, nil
}
