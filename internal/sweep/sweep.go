// Package sweep runs the optional background cleanup of expired sessions.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes expired records. *filestore.Store implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Start periodically sweeps expired sessions until ctx is cancelled. It
// blocks; run it in its own goroutine. A non-positive interval disables
// sweeping and Start returns immediately.
func Start(ctx context.Context, sweeper Sweeper, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Debug().Err(err).Msg("session sweep failed")
				continue
			}
			logger.Debug().Int("removed", n).Msg("session sweep finished")
		}
	}
}
