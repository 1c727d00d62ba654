// Package cache provides an in-memory cache with TTL expiry, capacity eviction
// and tag invalidation, plus the key derivation helpers shared by the memoizers.
//
// # Overview
//
// The package exports:
//
//   - CacheService: a time-bounded, capacity-bounded cache of arbitrary values
//   - GetOrSet / Get: type-safe wrappers over a CacheService
//   - DeriveKey: the default key function of the memoize package
//   - KeySerializer: builds stable keys from method names and arguments
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer svc.Destroy()
//
//	svc.Set("stats:weekly", summary, cache.WithTTL(10*time.Minute), cache.WithTag("stats"))
//
//	total, err := cache.GetOrSet(ctx, svc, "workouts:count", func(ctx context.Context) (int, error) {
//		return store.CountWorkouts(ctx)
//	}, cache.WithTag("workouts"))
//
//	// A new workout invalidates every entry derived from workouts.
//	svc.DeleteByTag("workouts")
//
// # Expiry and Eviction
//
// An entry is logically absent once its expiry time is reached, whether or not
// it has been removed yet. Expired entries are removed by a per-key timer, on
// access when Config.CleanupOnAccess is set, and by a periodic sweep every
// Config.CleanupInterval. Each removal counts once in Stats.Expired.
//
// When a new key would exceed Config.MaxSize, the entry created earliest is
// evicted. Reads do not affect eviction order; overwriting a key re-creates it.
//
// GetOrSet does not deduplicate concurrent misses: callers racing on the same
// key each run their loader. Use the memoize package when deduplication matters.
//
// # Key Derivation
//
// DeriveKey formats a single primitive argument directly and encodes anything
// else as a JSON array, degrading to positional placeholders for arguments
// that cannot be encoded. The reflection based KeySerializer also accepts
// funcs, channels and cyclic values; function criteria are keyed by address,
// so those keys are stable only within a single process lifetime.
// NewHashedKeySerializer produces fixed-length keys from the same encoding.
//
// # Error Handling
//
// Misses are not errors. Loader errors are returned unchanged and nothing is
// cached. Invalid configuration yields a go-errors validation error, and the
// typed helpers report ErrInvalidResultType when a cached value has another type.
package cache
