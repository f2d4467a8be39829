// Package janitor runs periodic cleanup of idle chat state and stale profiles.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/agent-console/internal/store"
)

// StateEvicter drops idle in-memory chat states.
type StateEvicter interface {
	EvictIdle(idle time.Duration) int
}

// Config controls the sweep.
type Config struct {
	Interval   time.Duration
	StateIdle  time.Duration
	ProfileTTL time.Duration // 0 keeps stored profiles forever
}

// Start runs a background goroutine that sweeps every cfg.Interval until ctx
// is cancelled.
func Start(ctx context.Context, repo store.Repository, states StateEvicter, cfg Config) {
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Janitor started", "interval", cfg.Interval, "state_idle", cfg.StateIdle, "profile_ttl", cfg.ProfileTTL)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, states, cfg)
			case <-ctx.Done():
				slog.Info("Janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one cleanup pass.
func Sweep(ctx context.Context, repo store.Repository, states StateEvicter, cfg Config) {
	if evicted := states.EvictIdle(cfg.StateIdle); evicted > 0 {
		slog.Info("Janitor evicted idle chat states", "count", evicted)
	}

	if cfg.ProfileTTL <= 0 {
		return
	}
	deleted, err := repo.DeleteStaleItems(ctx, cfg.ProfileTTL)
	if err != nil {
		slog.Error("Janitor failed to delete stale profiles", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Janitor deleted stale profiles", "count", deleted)
	}
}

// Evicters fans EvictIdle out to every holder of idle in-memory state.
type Evicters []StateEvicter

// EvictIdle returns the total number of entries evicted.
func (es Evicters) EvictIdle(idle time.Duration) int {
	total := 0
	for _, e := range es {
		total += e.EvictIdle(idle)
	}
	return total
}
