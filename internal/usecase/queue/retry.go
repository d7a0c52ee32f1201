package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
)

// withRetry runs attempt until it stops reporting a write conflict or the
// budget is spent. Any other error ends the loop immediately.
func (uc *Usecase) withRetry(ctx context.Context, op string, maxAttempts int, attempt func() error) error {
	var lastConflict error
	for n := 1; n <= maxAttempts; n++ {
		err := attempt()
		if err == nil || !errors.Is(err, apperrors.ErrConflict) {
			return err
		}

		lastConflict = err
		uc.metrics.IncConflict(op)
		logger.WithContext(ctx, uc.log).Debug("write conflict, retrying",
			zap.String("operation", op), zap.Int("attempt", n), zap.Int("max_attempts", maxAttempts))

		if n == maxAttempts {
			break
		}
		if err := sleepCtx(ctx, uc.backoff(n)); err != nil {
			return err
		}
	}

	return &apperrors.RetryExhaustedError{Operation: op, Attempts: maxAttempts, Err: lastConflict}
}

// backoff grows linearly with the attempt and adds up to one base unit of
// jitter so that colliding writers spread out.
func (uc *Usecase) backoff(attempt int) time.Duration {
	base := uc.retry.Backoff
	if base <= 0 {
		return 0
	}
	return time.Duration(attempt)*base + rand.N(base)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
