// Package cleanup removes dead refresh tokens in the background.
package cleanup

import (
	"context"
	"time"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/timex"
)

// Purger deletes refresh tokens that expired before now or were revoked.
type Purger interface {
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}

type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   logging.Logger
	now      timex.Clock
}

func NewSweeper(p Purger, interval time.Duration, logger logging.Logger, now timex.Clock) *Sweeper {
	if logger == nil {
		logger = logging.Nop{}
	}
	if now == nil {
		now = timex.SystemClock
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{purger: p, interval: interval, logger: logger.With("module", "cleanup"), now: now}
}

// RunOnce performs a single cleanup pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.purger.DeleteExpiredOrRevoked(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "refresh token cleanup finished", "removed", n)
	return n, nil
}

// Run sweeps immediately and then every interval until ctx is done.
// A failed pass is logged and the loop carries on.
func (s *Sweeper) Run(ctx context.Context) {
	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pass(ctx)
		case <-ctx.Done():
			s.logger.Info(ctx, "cleanup stopped")
			return
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, "refresh token cleanup failed", "error", err)
	}
}
