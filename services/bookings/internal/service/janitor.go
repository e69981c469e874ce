package service

import (
	"context"
	"time"

	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/services/bookings/internal/repository"
)

// RunIdempotencyJanitor deletes expired Idempotency-Key records every
// interval until ctx is cancelled.
func RunIdempotencyJanitor(ctx context.Context, repo repository.IdempotencyRepository, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := repo.CleanupExpired(ctx)
			if err != nil {
				logger.WarnContext(ctx, "Idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "Expired idempotency keys removed", "count", n)
			}
		}
	}
}
