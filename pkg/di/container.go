package di

import (
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-memocache/cache"
	"github.com/goliatone/go-memocache/memoize"
	"github.com/goliatone/go-memocache/repositorycache"
)

// Container provides dependency injection for cache related components.
// It owns one cache service and one key serializer, and builds cached
// repositories and memoizers that share its clock and logger.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        cache.Config
}

// NewContainer creates a new DI container with the provided cache configuration.
func NewContainer(config cache.Config) (*Container, error) {
	cacheService, err := cache.NewCacheService(config)
	if err != nil {
		return nil, err
	}

	return &Container{
		cacheService:  cacheService,
		keySerializer: cache.NewHashedKeySerializer(),
		config:        config,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig())
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close destroys the cache service. Memoizers built by the container own
// their storage and are closed by the caller.
func (c *Container) Close() {
	c.cacheService.Destroy()
}

// NewCachedRepository wraps base with the container's cache service and key
// serializer. Options are applied after the container defaults.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[*WorkoutLog](container, baseRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	defaults := []repositorycache.Option{
		repositorycache.WithKeySerializer(container.keySerializer),
	}
	if container.config.Logger != nil {
		defaults = append(defaults, repositorycache.WithLogger(container.config.Logger))
	}
	return repositorycache.New(base, container.cacheService, append(defaults, opts...)...)
}

// NewMemoized memoizes fn using the container's clock and logger.
func NewMemoized[V any](container *Container, fn memoize.Func[V], opts ...memoize.Option) (*memoize.Memoized[V], error) {
	return memoize.Memoize(fn, append(container.memoizeDefaults(), opts...)...)
}

// NewAsyncMemoized memoizes fn using the container's clock and logger.
func NewAsyncMemoized[V any](container *Container, fn memoize.AsyncFunc[V], opts ...memoize.Option) (*memoize.AsyncMemoized[V], error) {
	return memoize.MemoizeAsync(fn, append(container.memoizeDefaults(), opts...)...)
}

func (c *Container) memoizeDefaults() []memoize.Option {
	var opts []memoize.Option
	if c.config.Clock != nil {
		opts = append(opts, memoize.WithClock(c.config.Clock))
	}
	if c.config.Logger != nil {
		opts = append(opts, memoize.WithLogger(c.config.Logger))
	}
	return opts
}
