package session

import (
	"context"
	"log/slog"
	"time"
)

const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically evicts expired sessions and proof bundles. It runs
// independently of request handling and stops when its context is canceled.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(store Store, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, log: log}
}

// Run blocks until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed, err := s.store.Sweep(ctx)
			if err != nil {
				s.log.Warn("registry sweep", "err", err)
				continue
			}
			if removed > 0 {
				s.log.Info("registry sweep evicted entries", "removed", removed)
			}
		}
	}
}
