// Package retry provides the retry loop shared by the RPC client operations.
//
// Errors come in two tiers. Transient errors are retried immediately and
// indefinitely; the caller's context is the only bound. Errors wrapped with
// Permanent end the loop and are returned to the caller.
package retry

import (
	"context"
	"errors"
	"fmt"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// OnRetryFunc is called after each transient failure, before the next attempt.
// attempt is 1-indexed (the first retry is attempt 1).
type OnRetryFunc func(attempt int, err error)

// UntilSuccess calls fn until it succeeds or returns a permanent error.
//
// There is no backoff between attempts. The loop stops with the context's
// error once ctx is done.
//
// Example:
//
//	hash, err := retry.UntilSuccess(ctx, onRetry, func(ctx context.Context) ([32]byte, error) {
//	    return lookup(ctx)
//	})
func UntilSuccess[T any](ctx context.Context, onRetry OnRetryFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled while retrying: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if IsPermanent(err) {
			return zero, err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
}
