package cacheinfra

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-memocache/internal/expiry"
)

// MemoryService is an in-memory cache with per-key TTL, creation-order
// eviction, tag invalidation and a periodic expiry sweep.
type MemoryService struct {
	id      string
	cfg     Config
	clock   sturdyc.Clock
	logger  *slog.Logger
	metrics MetricsRecorder

	mu        sync.Mutex
	store     *entryStore
	gen       uint64
	hits      uint64
	misses    uint64
	expired   uint64
	evictions uint64
	destroyed bool

	timers *expiry.Scheduler

	stopSweep context.CancelFunc
	sweepWG   sync.WaitGroup
}

// NewMemoryService validates cfg and starts the cache. The periodic sweep is
// started when cfg.CleanupInterval is positive; call Destroy to release it.
func NewMemoryService(cfg Config) (*MemoryService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &MemoryService{
		id:      uuid.NewString(),
		cfg:     cfg,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		store:   newEntryStore(cfg.MaxSize),
	}
	s.logger = cfg.Logger.With(slog.String("cache_id", s.id))
	s.timers = expiry.New(cfg.Clock, s.onTimer)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	if cfg.CleanupInterval > 0 {
		s.sweepWG.Add(1)
		go s.sweepLoop(ctx)
	}

	s.logger.Debug("cache service started",
		slog.Int("max_size", cfg.MaxSize),
		slog.Duration("default_ttl", cfg.DefaultTTL),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	return s, nil
}

// ID returns the instance identifier used in log records.
func (s *MemoryService) ID() string {
	return s.id
}

// Get returns the value stored under key. Unknown and expired keys are
// reported as misses.
func (s *MemoryService) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.freshLocked(key)
	if !ok {
		s.misses++
		s.metrics.Miss()
		return nil, false
	}

	s.hits++
	s.metrics.Hit()
	return e.value, true
}

// Set stores value under key, replacing any previous entry. It reports false
// only after Destroy.
func (s *MemoryService) Set(key string, value any, opts ...SetOption) bool {
	o := resolveSetOptions(s.cfg.DefaultTTL, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setLocked(key, value, o)
}

// Has reports whether key holds a fresh value without touching hit counters.
func (s *MemoryService) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.freshLocked(key)
	return ok
}

// Delete removes key and cancels its expiration. It reports whether the key
// was present.
func (s *MemoryService) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(key)
}

// Clear removes every entry and resets the counters.
func (s *MemoryService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	s.store.reset()
	s.resetCountersLocked()
}

// GetOrSet returns the fresh value under key or stores the result of factory.
// Factory errors are returned unchanged and nothing is stored. Concurrent
// callers missing the same key each run their own factory.
func (s *MemoryService) GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) (any, error) {
	if value, ok := s.Get(key); ok {
		return value, nil
	}

	if factory == nil {
		return nil, goerrors.New("factory cannot be nil", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"key": key})
	}

	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	s.Set(key, value, opts...)
	return value, nil
}

// GetMultiple returns the fresh values for keys. Every lookup counts as a Get.
func (s *MemoryService) GetMultiple(keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := s.Get(key); ok {
			out[key] = value
		}
	}
	return out
}

// SetMultiple stores entries in slice order with the same options, so at
// capacity the earlier entries of the batch are evicted first.
func (s *MemoryService) SetMultiple(entries []Entry, opts ...SetOption) bool {
	o := resolveSetOptions(s.cfg.DefaultTTL, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for _, e := range entries {
		ok = s.setLocked(e.Key, e.Value, o) && ok
	}
	return ok
}

// DeleteByTag removes every entry labelled with tag and returns how many were
// removed.
func (s *MemoryService) DeleteByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := s.store.collect(func(e *entry) bool {
		return e.tag == tag
	})
	for _, e := range matches {
		s.deleteLocked(e.key)
	}
	return len(matches)
}

// Refresh restarts the TTL of an existing entry.
func (s *MemoryService) Refresh(key string, opts ...SetOption) bool {
	o := resolveSetOptions(s.cfg.DefaultTTL, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.lookup(key)
	if !ok {
		return false
	}

	s.gen++
	e.gen = s.gen
	e.expiresAt = s.expiresAt(o.ttl)
	s.armLocked(e)
	return true
}

// Cleanup removes every expired entry and returns how many were removed.
func (s *MemoryService) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanupLocked()
}

// GetTTL returns the remaining lifetime of key: -1 when absent, 0 when
// expired but not yet removed, Forever when the entry never expires.
func (s *MemoryService) GetTTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.lookup(key)
	if !ok {
		return -1
	}
	if e.expiresAt.IsZero() {
		return Forever
	}
	remaining := e.expiresAt.Sub(s.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// Stats returns a snapshot of the cache counters.
func (s *MemoryService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Size:      s.store.len(),
		Expired:   s.expired,
		Evictions: s.evictions,
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// Keys returns the stored keys in creation order, expired ones included.
func (s *MemoryService) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.keys()
}

// Destroy stops the expiry timers and the sweep, then drops every entry.
// The service stores nothing afterwards. Destroy is idempotent.
func (s *MemoryService) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	// Timer and sweep callbacks take s.mu, so both are stopped unlocked.
	s.stopSweep()
	s.sweepWG.Wait()
	s.timers.Stop()

	s.mu.Lock()
	size := s.store.len()
	s.store.reset()
	s.resetCountersLocked()
	s.mu.Unlock()

	s.logger.Debug("cache service destroyed", slog.Int("dropped", size))
}

func (s *MemoryService) setLocked(key string, value any, o setOptions) bool {
	if s.destroyed {
		return false
	}

	now := s.clock.Now()
	s.gen++
	e := &entry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: s.expiresAt(o.ttl),
		tag:       o.tag,
		gen:       s.gen,
	}

	evicted := s.store.insert(e)
	if evicted != nil {
		s.timers.Cancel(evicted.key)
		s.evictions++
		s.metrics.Eviction()
		s.logger.Debug("cache entry evicted",
			slog.String("key", evicted.key),
			slog.Time("created_at", evicted.createdAt),
		)
	}

	s.armLocked(e)
	return true
}

// armLocked schedules the expiration of e, replacing any previous one.
func (s *MemoryService) armLocked(e *entry) {
	if e.expiresAt.IsZero() {
		s.timers.Cancel(e.key)
		return
	}
	s.timers.Schedule(e.key, e.expiresAt, e.gen)
}

func (s *MemoryService) expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

// freshLocked returns the entry under key when it has not expired, removing
// it on access if configured to.
func (s *MemoryService) freshLocked(key string) (*entry, bool) {
	e, ok := s.store.lookup(key)
	if !ok {
		return nil, false
	}
	if e.expired(s.clock.Now()) {
		if s.cfg.CleanupOnAccess {
			s.expireLocked(e)
		}
		return nil, false
	}
	return e, true
}

func (s *MemoryService) deleteLocked(key string) bool {
	if _, ok := s.store.remove(key); !ok {
		return false
	}
	s.timers.Cancel(key)
	return true
}

func (s *MemoryService) expireLocked(e *entry) {
	s.deleteLocked(e.key)
	s.expired++
	s.metrics.Expire()
}

func (s *MemoryService) cleanupLocked() int {
	now := s.clock.Now()
	stale := s.store.collect(func(e *entry) bool {
		return e.expired(now)
	})
	for _, e := range stale {
		s.expireLocked(e)
	}
	return len(stale)
}

// onTimer runs on the scheduler goroutine. The generation check discards
// expirations armed for a value that has since been replaced or refreshed.
func (s *MemoryService) onTimer(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.lookup(key)
	if !ok || e.gen != gen {
		return
	}
	s.expireLocked(e)
}

func (s *MemoryService) resetCountersLocked() {
	s.hits = 0
	s.misses = 0
	s.expired = 0
	s.evictions = 0
}
