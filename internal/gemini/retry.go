package gemini

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier runs an operation up to MaxAttempts times with exponential backoff
// between retryable failures: BaseDelay, 2*BaseDelay, 4*BaseDelay, ...
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	IsRetryable func(error) bool
}

// NewRetrier returns a Retrier with the default classifier and a real sleep.
func NewRetrier(maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Sleep:       SleepContext,
		IsRetryable: IsRetryable,
	}
}

// Delay returns the wait before the attempt following attempt (1-based).
func (r *Retrier) Delay(attempt int) time.Duration {
	return r.BaseDelay << (attempt - 1)
}

// Do calls fn until it succeeds, fails terminally or attempts run out. It
// returns the number of attempts made. When every attempt failed with a
// retryable error the last error is wrapped in ErrProviderBusy.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	classify := r.IsRetryable
	if classify == nil {
		classify = IsRetryable
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !classify(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		wait := r.Delay(attempt)
		log.WithError(lastErr).WithFields(log.Fields{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("gemini: retryable failure, backing off")
		if errSleep := sleep(ctx, wait); errSleep != nil {
			return attempt, errSleep
		}
	}
	return maxAttempts, fmt.Errorf("%w: %w", ErrProviderBusy, lastErr)
}
