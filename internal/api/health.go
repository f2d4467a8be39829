package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{db: db, timeout: timeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// GRPCHealth serves grpc.health.v1.Health, reporting SERVING while the
// database answers pings.
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewGRPCHealth creates a gRPC health server that probes db every interval.
func NewGRPCHealth(db Pinger, interval time.Duration) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server:   srv,
		health:   hs,
		db:       db,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Probe pings the database once and updates the serving status.
func (g *GRPCHealth) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.db.Ping(ctx); err != nil {
		slog.Warn("gRPC health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	return status
}

// Run probes until ctx is cancelled, then marks the server as shutting down.
func (g *GRPCHealth) Run(ctx context.Context) {
	g.Probe(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Probe(ctx)
		case <-ctx.Done():
			g.health.Shutdown()
			return
		}
	}
}

// Serve accepts gRPC connections on lis until Stop is called.
func (g *GRPCHealth) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCHealth) Stop() {
	g.server.GracefulStop()
}
