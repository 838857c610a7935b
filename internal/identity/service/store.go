package service

import (
	"context"
	"time"
)

// DefaultStoreTimeout bounds a store call when no timeout is configured.
const DefaultStoreTimeout = 3 * time.Second

// callStore runs fn under a deadline. Any failure, including the deadline, becomes ErrStoreUnavailable.
func callStore[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(cctx)
	if err != nil {
		var zero T
		return zero, storeError(op, err)
	}
	return v, nil
}
