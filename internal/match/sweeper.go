// internal/match/sweeper.go
package match

import (
	"context"
	"time"
)

// RunSweeper periodically finalizes ACTIVE matches whose deadline passed
// but that nobody queried again. Lazy check-on-access remains the primary
// timeout mechanism; this sweep only covers abandoned matches. Blocks
// until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	expired, err := s.matches.ListExpiredActive(ctx, s.now())
	if err != nil {
		s.logger.Warnf("timeout sweep: list expired matches: %v", err)
		return
	}
	for _, m := range expired {
		finalized, err := s.TimeoutCheck(ctx, m)
		if err != nil {
			s.logger.Warnf("timeout sweep: finalize match %s: %v", m.ID, err)
			continue
		}
		if finalized {
			s.logger.Infof("timeout sweep: finalized match %s (room %s)", m.ID, m.RoomID)
		}
	}
}
