// Package retry wraps cenkalti/backoff with the option sets used by the service.
package retry

import (
	"context"
	"pipi/backend/internal/config"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options contains configuration for retry behavior.
type Options struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// ConnectOptions suit waiting for Postgres or Redis at startup.
func ConnectOptions() Options {
	return Options{
		MaxElapsedTime:  60 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetries:      10,
	}
}

// JoinOptions suit re-running a lost compare-and-set join.
func JoinOptions() Options {
	return Options{
		MaxElapsedTime:  2 * time.Second,
		InitialInterval: config.JoinRetryInitialInterval,
		MaxInterval:     config.JoinRetryMaxInterval,
		MaxRetries:      config.JoinRetryMaxRetries,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do executes operation with exponential backoff until it succeeds, returns a
// Permanent error, runs out of retries or ctx is done.
func Do[T any](ctx context.Context, operation func() (T, error), opts Options) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	err := backoff.Retry(func() error {
		var err error
		result, err = operation()
		return err
	}, backoff.WithContext(b, ctx))
	return result, err
}
