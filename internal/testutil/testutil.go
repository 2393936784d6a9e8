package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTimeout is the default timeout for tests
const TestTimeout = 5 * time.Second

// WithTimeout creates a context with the default test timeout
func WithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), TestTimeout)
}

// Runner is satisfied by an event loop.
type Runner interface {
	Run(ctx context.Context, main func()) error
}

// Run runs main on r and fails the test if the loop does not drain within
// TestTimeout or a task panics.
func Run(t *testing.T, r Runner, main func()) {
	t.Helper()
	ctx, cancel := WithTimeout(t)
	defer cancel()
	if err := r.Run(ctx, main); err != nil {
		t.Fatalf("loop run: %v", err)
	}
}

// Eventually polls cond every tick until it holds or timeout elapses.
func Eventually(t *testing.T, cond func() bool, timeout, tick time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(tick)
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// Recorder collects values from any goroutine.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// Add appends v.
func (r *Recorder[T]) Add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

// Values returns a copy of the recorded values.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
