package cache

import (
	"log/slog"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-memocache/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// DefaultTTL applies to writes without WithTTL. Zero keeps entries until
	// they are deleted or evicted.
	DefaultTTL time.Duration
	// MaxSize bounds the number of entries. Zero means unbounded.
	MaxSize int
	// CleanupOnAccess deletes expired entries when a read finds them.
	CleanupOnAccess bool
	// CleanupInterval is the period of the background sweep. Zero disables it.
	CleanupInterval time.Duration
	// Clock drives expirations. Nil uses the wall clock; tests pass
	// sturdyc.NewTestClock to control time.
	Clock sturdyc.Clock
	// Logger receives debug events tagged with the cache id.
	Logger *slog.Logger
	// Metrics is notified about cache events.
	Metrics MetricsRecorder
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the default in-memory implementation using the
// provided configuration. Call Destroy when the service is no longer needed.
func NewCacheService(cfg Config) (CacheService, error) {
	svc, err := cacheinfra.NewMemoryService(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		DefaultTTL:      c.DefaultTTL,
		MaxSize:         c.MaxSize,
		CleanupOnAccess: c.CleanupOnAccess,
		CleanupInterval: c.CleanupInterval,
		Clock:           c.Clock,
		Logger:          c.Logger,
		Metrics:         c.Metrics,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupOnAccess: cfg.CleanupOnAccess,
		CleanupInterval: cfg.CleanupInterval,
		Clock:           cfg.Clock,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
	}
}
