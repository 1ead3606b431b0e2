package resilience

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times, sleeping delay between attempts.
// It stops early when the context is cancelled or fn succeeds. The last
// error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i < attempts-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
