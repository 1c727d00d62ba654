package memoize

import (
	"context"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// AsyncFunc is a fallible function whose results can be memoized.
type AsyncFunc[V any] func(ctx context.Context, args ...any) (V, error)

// AsyncMemoized wraps an AsyncFunc. Concurrent calls with the same key share
// one in-flight computation, and successful results are cached like Memoized.
// Failed results are cached only with WithCacheErrors.
type AsyncMemoized[V any] struct {
	fn          AsyncFunc[V]
	keyFn       KeyFunc
	cacheErrors bool
	logger      *slog.Logger

	store    *memoStore[*Future[V]]
	inFlight *xsync.MapOf[string, *Future[V]]
}

// MemoizeAsync returns a memoized version of fn.
//
// With a TTL, a background goroutine expires results while any are pending
// and exits once none are. Close releases it immediately.
func MemoizeAsync[V any](fn AsyncFunc[V], opts ...Option) (*AsyncMemoized[V], error) {
	if fn == nil {
		return nil, goerrors.New("memoized function cannot be nil", goerrors.CategoryBadInput)
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &AsyncMemoized[V]{
		fn:          fn,
		keyFn:       o.keyFn,
		cacheErrors: o.cacheErrors,
		logger:      o.logger,
		store:       newMemoStore[*Future[V]](o),
		inFlight:    xsync.NewMapOf[string, *Future[V]](),
	}, nil
}

// Go starts or joins the computation for args and returns its future without
// blocking. Cached and in-flight results count as hits.
//
// The wrapped function runs on its own goroutine with a context detached from
// ctx's cancellation, so a caller giving up does not fail the callers sharing
// the computation.
func (m *AsyncMemoized[V]) Go(ctx context.Context, args ...any) *Future[V] {
	key := m.keyFn(args...)

	if f, ok := m.store.lookup(key); ok {
		m.store.record(true)
		return f
	}

	created := false
	f, _ := m.inFlight.LoadOrCompute(key, func() *Future[V] {
		created = true
		return newFuture[V]()
	})
	if !created {
		m.store.record(true)
		return f
	}

	// A computation for key may have been cached between the lookup above and
	// publishing f. Its future settles right after it leaves the in-flight map.
	if cached, ok := m.store.lookup(key); ok {
		<-cached.Done()
		value, err := cached.Result()
		m.inFlight.Delete(key)
		f.settle(value, err)
		m.store.record(true)
		return f
	}

	m.store.record(false)
	go m.run(context.WithoutCancel(ctx), key, f, args)
	return f
}

// Call is Go followed by Wait.
func (m *AsyncMemoized[V]) Call(ctx context.Context, args ...any) (V, error) {
	return m.Go(ctx, args...).Wait(ctx)
}

// run computes the result for key. The future leaves the in-flight map before
// it settles, so a caller that has seen the result never joins it again: a
// cached result is found in the store and an uncached failure is retried.
func (m *AsyncMemoized[V]) run(ctx context.Context, key string, f *Future[V], args []any) {
	value, err := m.invoke(ctx, key, args)

	cached := err == nil || m.cacheErrors
	if cached {
		m.store.put(key, f)
	}
	m.inFlight.Delete(key)
	f.settle(value, err)

	if !cached {
		m.logger.Debug("memoized call failed, result not cached",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (m *AsyncMemoized[V]) invoke(ctx context.Context, key string, args []any) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			value, err = zero, panicError(key, r)
		}
	}()
	return m.fn(ctx, args...)
}

// Key returns the key Go uses for args.
func (m *AsyncMemoized[V]) Key(args ...any) string {
	return m.keyFn(args...)
}

// Has reports whether a cached result exists for args. A computation counts
// once it has finished and stored its result; in-flight computations do not.
func (m *AsyncMemoized[V]) Has(args ...any) bool {
	_, ok := m.store.lookup(m.keyFn(args...))
	return ok
}

// Get returns the cached future for args without starting a computation or
// counting a hit or miss. The future may settle a moment after it is stored,
// so callers should Wait on it.
func (m *AsyncMemoized[V]) Get(args ...any) (*Future[V], bool) {
	return m.store.lookup(m.keyFn(args...))
}

// Delete forgets the result cached under key. An in-flight computation for
// key is not affected.
func (m *AsyncMemoized[V]) Delete(key string) bool {
	return m.store.delete(key)
}

// Clear forgets every cached result and resets the counters.
func (m *AsyncMemoized[V]) Clear() {
	m.store.clear()
}

// Stats returns a snapshot of the counters.
func (m *AsyncMemoized[V]) Stats() Stats {
	return m.store.stats()
}

// InFlight returns the number of computations currently running.
func (m *AsyncMemoized[V]) InFlight() int {
	return m.inFlight.Size()
}

// Func returns the wrapped function.
func (m *AsyncMemoized[V]) Func() AsyncFunc[V] {
	return m.fn
}

// Entries returns a copy of the cached futures by key.
func (m *AsyncMemoized[V]) Entries() map[string]*Future[V] {
	return m.store.snapshot()
}

// Keys returns the cached keys in insertion order.
func (m *AsyncMemoized[V]) Keys() []string {
	return m.store.keys()
}

// Close stops expirations and forgets every cached result. Computations
// already in flight still settle their futures.
func (m *AsyncMemoized[V]) Close() {
	m.store.close()
}
