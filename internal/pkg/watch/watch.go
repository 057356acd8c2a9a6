// Package watch provides a single-slot, overwrite-on-publish broadcast value.
//
// A Value holds only the most recent publication. Waiters are woken on every
// publish and re-check their condition against the latest value; intermediate
// values a slow waiter did not see are gone.
package watch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait once the publisher has closed the value and no
// published value satisfies the waiter.
var ErrClosed = errors.New("watch: value closed")

// Value is a last-value broadcast cell. The zero value is not usable; use NewValue.
type Value[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	changed chan struct{}
	closed  bool
}

// NewValue returns a Value holding initial. The initial value is never
// reported to waiters; only published values are.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		val:     initial,
		changed: make(chan struct{}),
	}
}

// Publish replaces the current value and wakes all waiters.
// Returns false if the value has been closed.
func (v *Value[T]) Publish(val T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	v.val = val
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
	return true
}

// Load returns the current value and its version. Version 0 means nothing has
// been published yet.
func (v *Value[T]) Load() (T, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.version
}

// Close marks the value closed and wakes all waiters. Further publishes are
// dropped. Close is idempotent.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.changed)
}

// Closed reports whether Close has been called.
func (v *Value[T]) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Wait blocks until a published value satisfies ready and returns it.
// A satisfying value that was published before Close is still returned;
// otherwise a closed Value yields ErrClosed.
func (v *Value[T]) Wait(ctx context.Context, ready func(T) bool) (T, error) {
	var zero T
	for {
		v.mu.Lock()
		val, version, closed, changed := v.val, v.version, v.closed, v.changed
		v.mu.Unlock()

		if version > 0 && ready(val) {
			return val, nil
		}
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
