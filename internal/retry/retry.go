// Package retry provides exponential backoff with jitter around remote calls.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy controls backoff behavior for a Retrier.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy matches the budget used at every remote-call boundary:
// three attempts, 1s base delay, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay returns the wait before the given attempt (1-based; attempt 1 never waits).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter {
		// Spread between 50% and 100% of the computed delay.
		delay = time.Duration(float64(delay)*0.5 + rand.Float64()*float64(delay)*0.5)
	}

	return delay
}

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Retrier runs operations under a Policy, retrying transient failures.
type Retrier struct {
	policy      Policy
	isRetryable Classifier
	logger      *slog.Logger
}

// New creates a Retrier. A nil classifier retries nothing; a nil logger
// falls back to slog.Default.
func New(policy Policy, classifier Classifier, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		policy:      policy,
		isRetryable: classifier,
		logger:      logger,
	}
}

// Do runs op until it succeeds, the error is classified permanent, the
// attempt budget is spent, or ctx is cancelled.
func (r *Retrier) Do(ctx context.Context, name string, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if delay := r.policy.Delay(attempt); delay > 0 {
			r.logger.Info("retrying operation",
				"operation", name,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during backoff: %w", name, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", name, err)
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		retryable := r.isRetryable != nil && r.isRetryable(lastErr)
		r.logger.Warn("operation attempt failed",
			"operation", name,
			"attempt", attempt,
			"retryable", retryable,
			"error", lastErr)

		if !retryable {
			return lastErr
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, r.policy.MaxAttempts, lastErr)
}
