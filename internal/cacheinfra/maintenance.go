package cacheinfra

import (
	"context"
	"log/slog"
)

// sweepLoop periodically removes expired entries. Per-key timers already do
// this, the sweep bounds memory when a timer could not be delivered and keeps
// entries written with CleanupOnAccess disabled from lingering.
func (s *MemoryService) sweepLoop(ctx context.Context) {
	defer s.sweepWG.Done()

	tick, stop := s.clock.NewTicker(s.cfg.CleanupInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if removed := s.Cleanup(); removed > 0 {
				s.logger.Debug("expired cache entries swept", slog.Int("removed", removed))
			}
		}
	}
}
