package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically evicts expired sessions from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	onSweep  func(removed int)
}

// NewSweeper returns a sweeper; onSweep, if non-nil, is called after each pass.
func NewSweeper(store *Store, interval time.Duration, onSweep func(removed int)) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, onSweep: onSweep}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", s.interval).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			removed := s.store.SweepExpired()
			if s.onSweep != nil {
				s.onSweep(removed)
			}
		}
	}
}
