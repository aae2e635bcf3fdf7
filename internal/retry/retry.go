// Package retry runs operations against flaky dependencies (database
// connect, object storage, Redis) with exponential backoff. A single Policy
// is shared across the service so every dependency retries the same way.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrRateLimited marks an error as a rate-limit signal. Rate-limited
// operations are never retried.
var ErrRateLimited = errors.New("rate limited")

// Policy configures exponential backoff.
//
// Attempts is the number of retries after the first try, so Attempts=3 runs
// the operation at most four times. Delays grow InitialDelay,
// InitialDelay*Multiplier, ... capped at MaxDelay.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       float64 // randomization factor in [0,1); 0 = deterministic
}

// DefaultPolicy retries three times starting at one second, growing 1.5x.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: time.Second,
		Multiplier:   1.5,
		MaxDelay:     30 * time.Second,
	}
}

// Permanent wraps err so Do returns it immediately without retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do runs op until it succeeds, returns a permanent or rate-limit error, the
// policy is exhausted, or ctx is done. name is used for logging only.
func Do(ctx context.Context, p Policy, name string, op func(context.Context) error) error {
	_, err := Value(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}

	attempts := p.Attempts
	if attempts < 0 {
		attempts = 0
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && errors.Is(err, ErrRateLimited) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("op", name).Dur("retry_in", next).Msg("retrying")
		}),
	)
}
