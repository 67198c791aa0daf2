// Package retry provides a bounded fixed-delay retry combinator. Callers
// decide which failures are transient via a predicate; everything else fails
// on the first attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op up to attempts times, waiting delay between attempts. A failure
// is retried only when retryable(err) is true; otherwise it is returned
// immediately. Context cancellation stops the wait and returns the last error.
func Do(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, op func() error) error {
	_, err := DoValue(ctx, attempts, delay, retryable, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue is the result-returning variant of Do.
func DoValue[T any](ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, op func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}
