package workflow

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/resumatch/resumatch/internal/domain"
)

const (
	defaultRetryBaseDelay    = 1 * time.Second
	defaultBackoffMultiplier = 2.0
)

// RetryPolicy bounds automatic retries of transient stage failures.
// Attempts counts total tries, not re-tries; an Attempts of 1 disables
// retrying.
type RetryPolicy struct {
	Attempts          int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

// retryTransient runs fn up to policy.Attempts times with exponential
// backoff between tries. Errors carrying a non-retryable failure kind
// stop the loop immediately, as does cancellation of ctx.
func retryTransient(ctx context.Context, policy RetryPolicy, logger *slog.Logger, operation string, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	baseDelay := policy.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = defaultBackoffMultiplier
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Transient failure recovered",
					slog.String("operation", operation),
					slog.Int("attempt", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if stageErr, ok := domain.AsStageError(err); ok && !stageErr.Kind.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(float64(baseDelay) * math.Pow(multiplier, float64(attempt-1)))
		logger.Warn("Transient failure, retrying",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("retry_in", delay),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}

	return lastErr
}
