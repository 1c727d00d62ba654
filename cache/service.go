package cache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-memocache/internal/cacheinfra"
)

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the typed loader used by GetOrSet on a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

type (
	// Stats is a point-in-time snapshot of cache counters.
	Stats = cacheinfra.Stats
	// Entry is one key and value written by SetMultiple.
	Entry = cacheinfra.Entry
	// SetOption customizes a single write.
	SetOption = cacheinfra.SetOption
	// Factory computes a value on a cache miss.
	Factory = cacheinfra.Factory
	// MetricsRecorder is notified about hits, misses, evictions and expirations.
	MetricsRecorder = cacheinfra.MetricsRecorder
	// NoopMetrics ignores every event.
	NoopMetrics = cacheinfra.NoopMetrics
)

// Forever is reported by GetTTL for entries that never expire.
const Forever = cacheinfra.Forever

// ErrInvalidResultType is returned by the typed helpers when the cached value
// cannot be converted to the requested type.
var ErrInvalidResultType = goerrors.New("cached value has unexpected type", goerrors.CategoryBadInput).
	WithTextCode("INVALID_RESULT_TYPE")

// CacheService is a time-bounded, capacity-bounded in-memory cache.
//
// Entries expire after their TTL, the entry created earliest is evicted when a
// new key would exceed capacity, and entries can be labelled with a tag for
// bulk invalidation. Misses are never errors.
type CacheService interface {
	// Get returns the fresh value under key. Expired entries count as misses.
	Get(key string) (any, bool)
	// Set stores value under key, replacing any previous entry and its TTL.
	Set(key string, value any, opts ...SetOption) bool
	// Has reports whether key holds a fresh value. It does not count as a hit or miss.
	Has(key string) bool
	// Delete removes key and reports whether it was present.
	Delete(key string) bool
	// Clear removes every entry and resets the counters.
	Clear()
	// GetOrSet returns the fresh value under key or stores the result of factory.
	GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) (any, error)
	// GetMultiple returns the fresh values among keys.
	GetMultiple(keys ...string) map[string]any
	// SetMultiple stores entries in slice order with the same options.
	SetMultiple(entries []Entry, opts ...SetOption) bool
	// DeleteByTag removes every entry labelled with tag and returns the count.
	DeleteByTag(tag string) int
	// Refresh restarts the TTL of an existing entry.
	Refresh(key string, opts ...SetOption) bool
	// Cleanup removes expired entries and returns the count.
	Cleanup() int
	// GetTTL returns the remaining lifetime of key, -1 when absent.
	GetTTL(key string) time.Duration
	// Stats returns a snapshot of the counters.
	Stats() Stats
	// Destroy stops background work and drops every entry.
	Destroy()
}

// WithTTL overrides the configured default TTL for a write.
// Zero or negative values store the entry without expiration.
func WithTTL(ttl time.Duration) SetOption {
	return cacheinfra.WithTTL(ttl)
}

// WithTag labels an entry so it can be removed with DeleteByTag.
func WithTag(tag string) SetOption {
	return cacheinfra.WithTag(tag)
}

// GetOrSet is a type-safe wrapper around CacheService.GetOrSet.
func GetOrSet[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T], opts ...SetOption) (T, error) {
	var zero T

	result, err := service.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}

	return convertResult[T](key, result)
}

// Get is a type-safe wrapper around CacheService.Get. A value of another type
// is reported as absent.
func Get[T any](service CacheService, key string) (T, bool) {
	result, ok := service.Get(key)
	if !ok {
		var zero T
		return zero, false
	}

	value, err := convertResult[T](key, result)
	if err != nil {
		return value, false
	}
	return value, true
}

func convertResult[T any](key string, result any) (T, error) {
	var zero T

	// A nil interface is the zero value for interface and pointer types.
	if result == nil {
		return zero, nil
	}

	value, ok := result.(T)
	if !ok {
		err := goerrors.New(
			fmt.Sprintf("cached value is %T, expected %s", result, reflect.TypeFor[T]()),
			goerrors.CategoryBadInput,
		).WithTextCode("INVALID_RESULT_TYPE").
			WithMetadata(map[string]any{"key": key})
		err.Source = ErrInvalidResultType
		return zero, err
	}

	return value, nil
}
