package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is implemented by stores that hold expired entries in memory
type Sweeper interface {
	Sweep() int
}

// RunSweeper calls Sweep on every sweeper each interval until ctx is done
func RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger, sweepers ...Sweeper) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := 0
			for _, s := range sweepers {
				removed += s.Sweep()
			}
			if removed > 0 {
				logger.Debug("swept expired entries", zap.Int("removed", removed))
			}
		}
	}
}
