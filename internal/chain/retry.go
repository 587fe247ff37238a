package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &coreerr.CoreError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: coreerr.ExitGeneral,
	}

	ErrTimeout = &coreerr.CoreError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: coreerr.ExitGeneral,
	}

	ErrRateLimited = &coreerr.CoreError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: coreerr.ExitGeneral,
	}
)

// RetryConfig configures retry behavior.
// Only idempotent reads (balance, fee, account lookups) are retried.
// Order creation and broadcast are never passed through Retry.
type RetryConfig struct {
	MaxAttempts int                          // Maximum number of attempts (including initial)
	BaseDelay   time.Duration                // Initial delay between retries
	MaxDelay    time.Duration                // Maximum delay between retries
	OnRetry     func(attempt int, err error) // Optional hook called before each retry delay
}

// DefaultRetryConfig returns the default retry configuration.
// 3 attempts total with delays of roughly 250ms and 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry executes the operation with exponential backoff using DefaultRetryConfig.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig executes the operation with the specified retry configuration.
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

		// Don't delay after the last attempt
		if attempt < attempts-1 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, err)
			}
			delay := calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)

			timer := time.NewTimer(delay)
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

// calculateDelay returns an exponential backoff delay with jitter in [delay/2, delay).
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable returns true if the error should trigger a retry.
// An open circuit breaker is not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, coreerr.ErrServiceUnavailable) {
		return false
	}

	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseRetryAfter parses the Retry-After header value in seconds.
// Returns 0 if the header is empty or malformed.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// WrapRetryable wraps an error to mark it as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
