package housekeeping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/livesync/internal/domain"
)

// DefaultSweepInterval is how often expired sessions are reclaimed.
const DefaultSweepInterval = 5 * time.Minute

// Reaper is the registry surface the sweeper needs.
type Reaper interface {
	// ExpiredSessions returns ids of registered sessions whose expiry is at or before now.
	ExpiredSessions(now time.Time) []string

	// StopExpired tears a session down through the regular stop path.
	StopExpired(id string) error
}

// Pruner removes journal entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepConfig configures StartSweeper.
type SweepConfig struct {
	Interval         time.Duration
	Journal          Pruner
	JournalRetention time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
}

func (c *SweepConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// StartSweeper runs a background goroutine that periodically stops sessions
// past their expiry and prunes the journal. It exits when ctx is done.
func StartSweeper(ctx context.Context, reaper Reaper, cfg SweepConfig) {
	cfg.defaults()
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		cfg.Logger.Info("Expiry sweeper started", "interval", cfg.Interval)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, reaper, cfg)
			case <-ctx.Done():
				cfg.Logger.Info("Expiry sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one pass and returns the number of sessions it stopped.
func Sweep(ctx context.Context, reaper Reaper, cfg SweepConfig) int {
	cfg.defaults()
	now := cfg.Now()

	stopped := 0
	expired := reaper.ExpiredSessions(now)
	if len(expired) > 0 {
		cfg.Logger.Info("Sweeper found expired sessions", "count", len(expired))
	}

	for _, id := range expired {
		err := reaper.StopExpired(id)
		switch {
		case err == nil:
			stopped++
			cfg.Logger.Info("Sweeper stopped expired session", "session_id", id)
		case errors.Is(err, domain.ErrSessionNotFound):
			// Stopped explicitly between listing and stopping.
			cfg.Logger.Debug("Expired session already stopped", "session_id", id)
		default:
			cfg.Logger.Error("Sweeper failed to stop session", "session_id", id, "error", err)
		}
	}

	if cfg.Journal != nil && cfg.JournalRetention > 0 {
		deleted, err := cfg.Journal.Prune(ctx, now.Add(-cfg.JournalRetention))
		if err != nil {
			cfg.Logger.Error("Sweeper failed to prune journal", "error", err)
		} else if deleted > 0 {
			cfg.Logger.Info("Sweeper pruned journal events", "count", deleted)
		}
	}

	return stopped
}
