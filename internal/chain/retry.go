package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &kinerr.KinError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: kinerr.ExitGeneral,
	}

	ErrTimeout = &kinerr.KinError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: kinerr.ExitGeneral,
	}

	ErrRateLimited = &kinerr.KinError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: kinerr.ExitGeneral,
	}
)

// RetryConfig is the bounded retry policy for HTTP calls below the
// migration state machine.
type RetryConfig struct {
	MaxAttempts int           `yaml:"attempts"`   // including the first attempt
	BaseDelay   time.Duration `yaml:"base_delay"` // delay before the first retry
	MaxDelay    time.Duration `yaml:"max_delay"`  // upper bound for any delay
}

// DefaultRetryConfig returns 3 attempts with 1s then 2s between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Second,
	}
}

// Retry runs operation with DefaultRetryConfig.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig runs operation until it succeeds, returns a
// non-retryable error, or cfg.MaxAttempts is reached.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// calculateDelay returns an exponential delay with jitter in [d/2, d).
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable reports whether err should trigger another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// ParseRetryAfter parses a Retry-After header given in seconds.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks err as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
