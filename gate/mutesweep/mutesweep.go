// Background reconciler which clears expired mutes in durable storage.
package mutesweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moskvenov/replyer/store"
)

type Sweeper struct {
	Store    store.Store
	Interval time.Duration
	// Deadline for the storage calls of a single sweep.
	Timeout time.Duration
	Logger  *slog.Logger
	// Source of "now"; nil means time.Now.
	Clock func() time.Time
}

func NewSweeper(st store.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		Store:    st,
		Interval: interval,
		Timeout:  30 * time.Second,
		Logger:   logger.With("system", "mutesweep"),
	}
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Clears every mute which expired strictly before now, in one batch write. A sweep which finds nothing expired writes nothing. Returns the number of records cleared.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	expired, err := s.Store.ListExpiredMutes(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing expired mutes: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(expired))
	for i, rec := range expired {
		ids[i] = rec.SubjectID
	}
	n, err := s.Store.ClearMutes(ctx, ids, now)
	if err != nil {
		return 0, fmt.Errorf("clearing expired mutes: %w", err)
	}
	mutesCleared.Add(float64(n))
	s.Logger.Info("cleared expired mutes", "count", n, "candidates", len(ids))
	return n, nil
}

// Sweeps every Interval until ctx is cancelled. Failed sweeps are logged and retried at the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("mute sweeper shutting down")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				sweepErrors.Inc()
				s.Logger.Error("mute sweep failed", "err", err)
			}
		}
	}
}
