package memoize

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrPanic is the source of the error a future settles with when the
	// wrapped function panics.
	ErrPanic = goerrors.New("memoized function panicked", goerrors.CategoryInternal).
		WithTextCode("MEMOIZE_PANIC")

	// ErrPending is returned by Future.Result before the future has settled.
	ErrPending = goerrors.New("memoized call still in flight", goerrors.CategoryConflict).
		WithTextCode("MEMOIZE_PENDING")
)

// Future is the eventual result of an async memoized call. Every caller that
// joins the same computation receives the same *Future.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. Abandoning a wait
// does not cancel the computation.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Settled reports whether the result is available.
func (f *Future[V]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the settled result without blocking, or ErrPending.
func (f *Future[V]) Result() (V, error) {
	if !f.Settled() {
		var zero V
		return zero, ErrPending
	}
	return f.value, f.err
}

// settle must be called exactly once.
func (f *Future[V]) settle(value V, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

func panicError(key string, recovered any) error {
	err := goerrors.New(fmt.Sprintf("memoized function panicked: %v", recovered), goerrors.CategoryInternal).
		WithTextCode("MEMOIZE_PANIC").
		WithMetadata(map[string]any{"key": key, "panic": fmt.Sprint(recovered)})
	err.Source = ErrPanic
	return err
}
