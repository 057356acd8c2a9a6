// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"
	"time"
)

// WaitFor polls condition every interval until it holds or timeout elapses.
// It reports whether the condition was met.
func WaitFor(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !condition() {
		select {
		case <-deadline.C:
			return condition()
		case <-ticker.C:
		}
	}
	return true
}

// RequireEventually fails the test if condition does not hold within timeout.
func RequireEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitFor(t, timeout, 5*time.Millisecond, condition) {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}

// Receive waits for a value on ch, failing the test after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no value received within %v", timeout)
		var zero T
		return zero
	}
}
