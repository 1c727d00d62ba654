// Package memoize caches function results by argument key.
//
// Memoize wraps a synchronous function; MemoizeAsync wraps a fallible,
// context-aware function and deduplicates concurrent calls with the same key,
// so that a burst of identical requests runs the function once:
//
//	summary, err := memoize.MemoizeAsync(func(ctx context.Context, args ...any) (Summary, error) {
//		return store.WeeklySummary(ctx, args[0].(string))
//	}, memoize.WithTTL(time.Minute), memoize.WithMaxSize(52))
//	if err != nil {
//		return err
//	}
//	defer summary.Close()
//
//	s, err := summary.Call(ctx, "2024-W09")
//
// Keys come from cache.DeriveKey unless WithKeyFn is given. When MaxSize is
// reached the result inserted earliest is evicted; reads do not refresh a
// result's position. A TTL removes each result when it expires, and expired
// results are never returned even before their removal.
//
// Memoizers keep their own results and do not share a cache.CacheService.
package memoize
