package utils

import (
	"context"
	"time"
)

// SleepFunc suspends for d or until ctx is done.
// Services take one so tests can record delays instead of waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the real SleepFunc
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns base * 2^attempt for a zero-based attempt
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return base << uint(attempt)
}
