package device

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = 5 * time.Minute

// SessionCleaner deletes remembered logins older than a TTL.
type SessionCleaner interface {
	CleanupStaleDeviceSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// SweepConfig controls the idle sweeper.
type SweepConfig struct {
	Interval   time.Duration
	IdleTTL    time.Duration
	SessionTTL time.Duration
}

// StartSweeper periodically evicts idle devices and purges stale remembered
// logins until ctx is done. The returned channel is closed on exit.
func StartSweeper(ctx context.Context, reg *Registry, cleaner SessionCleaner, cfg SweepConfig) <-chan struct{} {
	if cfg.Interval <= 0 {
		cfg.Interval = sweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Device sweeper started", "interval", cfg.Interval, "idle_ttl", cfg.IdleTTL, "session_ttl", cfg.SessionTTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, reg, cleaner, cfg)
			case <-ctx.Done():
				slog.Info("Device sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, reg *Registry, cleaner SessionCleaner, cfg SweepConfig) {
	if cfg.IdleTTL > 0 {
		if n := reg.EvictIdle(cfg.IdleTTL); n > 0 {
			slog.Info("Device sweeper evicted idle devices", "count", n)
		}
	}

	if cleaner == nil || cfg.SessionTTL <= 0 {
		return
	}
	deleted, err := cleaner.CleanupStaleDeviceSessions(ctx, cfg.SessionTTL)
	if err != nil {
		slog.Error("Device sweeper failed to purge stale sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Device sweeper purged stale sessions", "count", deleted)
	}
}
