// Package retry provides a small bounded-retry helper with backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Options configures retry behavior.
type Options struct {
	MaxRetries int           // Additional attempts after the first
	Delay      time.Duration // Initial delay, doubles per attempt
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 2,
		Delay:      time.Second,
	}
}

// Do runs fn up to opts.MaxRetries+1 times, sleeping between attempts
// with a doubling delay. It stops early when fn succeeds or the context
// is cancelled. The last error is returned, wrapped with the attempt
// count.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.Delay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", opts.MaxRetries+1, err)
}
