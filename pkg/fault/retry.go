package fault

import (
	"context"
	"time"
)

// DefaultRetryDelay is the pause before the single retry.
const DefaultRetryDelay = 250 * time.Millisecond

// RetryOnce calls fn and, when it fails with a transient error, calls it one
// more time after DefaultRetryDelay. Non-transient errors return immediately.
func RetryOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryOnceWithDelay(ctx, DefaultRetryDelay, fn)
}

// RetryOnceWithDelay is RetryOnce with a custom pause.
func RetryOnceWithDelay(ctx context.Context, delay time.Duration, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !IsTransient(err) {
		return err
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return err
		case <-t.C:
		}
	}

	return fn(ctx)
}

// RetryOnceValue is RetryOnce for calls that return a value.
func RetryOnceValue[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := RetryOnce(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
