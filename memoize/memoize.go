package memoize

import (
	goerrors "github.com/goliatone/go-errors"
)

// Func is a function whose results can be memoized. It must be deterministic
// for a given argument list.
type Func[V any] func(args ...any) V

// Memoized wraps a Func and caches its results by argument key.
//
// Concurrent misses on the same key may each call the wrapped function; use
// AsyncMemoized when calls must be deduplicated. The wrapped function runs
// outside any lock, so it may call back into its own memoized version.
type Memoized[V any] struct {
	fn    Func[V]
	keyFn KeyFunc
	store *memoStore[V]
}

// Memoize returns a memoized version of fn.
//
// With a TTL, a background goroutine expires results while any are pending
// and exits once none are. Close releases it immediately.
func Memoize[V any](fn Func[V], opts ...Option) (*Memoized[V], error) {
	if fn == nil {
		return nil, goerrors.New("memoized function cannot be nil", goerrors.CategoryBadInput)
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Memoized[V]{
		fn:    fn,
		keyFn: o.keyFn,
		store: newMemoStore[V](o),
	}, nil
}

// Call returns the memoized result for args, calling the wrapped function on
// a miss.
func (m *Memoized[V]) Call(args ...any) V {
	key := m.keyFn(args...)

	if value, ok := m.store.lookup(key); ok {
		m.store.record(true)
		return value
	}
	m.store.record(false)

	value := m.fn(args...)
	m.store.put(key, value)
	return value
}

// Key returns the key Call uses for args.
func (m *Memoized[V]) Key(args ...any) string {
	return m.keyFn(args...)
}

// Has reports whether a live result is memoized for args.
func (m *Memoized[V]) Has(args ...any) bool {
	_, ok := m.store.lookup(m.keyFn(args...))
	return ok
}

// Get returns the memoized result for args without calling the wrapped
// function or counting a hit or miss.
func (m *Memoized[V]) Get(args ...any) (V, bool) {
	return m.store.lookup(m.keyFn(args...))
}

// Delete forgets the result stored under key.
func (m *Memoized[V]) Delete(key string) bool {
	return m.store.delete(key)
}

// Clear forgets every result and resets the counters.
func (m *Memoized[V]) Clear() {
	m.store.clear()
}

// Stats returns a snapshot of the counters.
func (m *Memoized[V]) Stats() Stats {
	return m.store.stats()
}

// Func returns the wrapped function.
func (m *Memoized[V]) Func() Func[V] {
	return m.fn
}

// Entries returns a copy of the memoized results by key.
func (m *Memoized[V]) Entries() map[string]V {
	return m.store.snapshot()
}

// Keys returns the memoized keys in insertion order.
func (m *Memoized[V]) Keys() []string {
	return m.store.keys()
}

// Close stops expirations and forgets every result. Later calls still run
// the wrapped function but nothing is memoized.
func (m *Memoized[V]) Close() {
	m.store.close()
}
