// Package retry wraps fallible operations with bounded exponential
// backoff. Policies are plain values so callers can hold different
// policies for navigation, clicks and extraction.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/fame0528/powerbot/internal/models"
)

// Policy controls how an operation is retried.
type Policy struct {
	// Enabled gates retrying entirely. A disabled policy runs the
	// operation exactly once.
	Enabled bool
	// MaxRetries is the number of retries after the first attempt, so
	// the operation runs at most MaxRetries+1 times.
	MaxRetries int
	// Delay is the sleep before the first retry.
	Delay time.Duration
	// BackoffMultiplier scales the delay for each subsequent retry.
	// Values below 1 are treated as 1 (constant delay).
	BackoffMultiplier float64
	// Jitter widens each delay by up to this fraction of itself.
	// Zero keeps the delay sequence deterministic.
	Jitter float64
}

// DefaultPolicy matches the usual interactive-page profile: four total
// attempts spaced 100ms, 200ms, 400ms apart.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:           true,
		MaxRetries:        3,
		Delay:             100 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

// Operation is a single attempt of the work being retried.
type Operation func(ctx context.Context) error

// Predicate reports whether a failed attempt should be retried.
// attempt is zero-based.
type Predicate func(err error, attempt int) bool

// Do runs op under the policy, retrying every failure until the
// attempts are exhausted. The returned error is the operation's own
// error when retrying is disabled or the context ends, and a
// RetryExhaustedError wrapping the last cause otherwise.
func Do(ctx context.Context, policy Policy, op Operation) error {
	return DoIf(ctx, policy, op, nil)
}

// DoIf is Do with a predicate: after a failed attempt, retryIf decides
// whether to keep going. When it declines, the attempt's error is
// returned as-is rather than wrapped, so callers can distinguish
// "gave up" from "ran out".
func DoIf(ctx context.Context, policy Policy, op Operation, retryIf Predicate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !policy.Enabled {
		return op(ctx)
	}

	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryIf != nil && !retryIf(lastErr, attempt) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(backoffDelay(policy, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &models.RetryExhaustedError{Attempts: attempts, Err: lastErr}
}

// backoffDelay computes the sleep after the given zero-based attempt.
func backoffDelay(policy Policy, attempt int) time.Duration {
	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(policy.Delay) * math.Pow(multiplier, float64(attempt)))
	if policy.Jitter > 0 {
		delay += time.Duration(rand.Float64() * policy.Jitter * float64(delay))
	}
	return delay
}
