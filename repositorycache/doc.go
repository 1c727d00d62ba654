// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and routes its reads
// through a cache.CacheService. Writes go to the base repository and, when
// they succeed, drop the cached reads they could have made stale.
//
// # Basic Usage
//
//	base := myrepo.New(db)
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	workouts := repositorycache.New(base, svc,
//		repositorycache.WithTTL(10*time.Minute),
//	)
//
//	log, err := workouts.GetByID(ctx, "w-123")
//	logs, total, err := workouts.List(ctx)
//
// # Tags
//
// Every cached read carries one cache tag under the repository namespace,
// which defaults to the snake_case name of T:
//
//   - GetByID:              <ns>:id:<id>
//   - GetByIdentifier:      <ns>:identifier
//   - Get, List and Count:  <ns>:query
//
// Create and GetOrCreate drop the query tag. Update, Upsert, Delete and
// ForceDelete drop the query and identifier tags plus the id tag of every
// record involved. DeleteMany and DeleteWhere cannot tell which records they
// touched and drop everything the repository has cached.
//
// Callers can attach their own tags to reads with WithCacheTags and remove
// them later with InvalidateTags:
//
//	ctx = repositorycache.WithCacheTags(ctx, "dashboard")
//	workouts.Count(ctx)
//	workouts.InvalidateTags("dashboard")
//
// # Transactions
//
// The *Tx methods and Raw never read from or write to the cache. Tx writes
// still invalidate once the base call succeeds.
//
// # Keys
//
// Keys are the namespace followed by the method name and an xxhash digest of
// the serialized arguments. Function criteria serialize by address, so two
// closures with the same body produce different keys.
//
// # Error Handling
//
// Errors from the base repository are returned unchanged and never cached.
package repositorycache
