package memoize

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-memocache/internal/expiry"
)

// Stats is a point-in-time snapshot of memoizer counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

type memoEntry[E any] struct {
	value     E
	expiresAt time.Time
	gen       uint64
}

// memoStore holds memoized results in insertion order. Capacity eviction
// removes the result inserted earliest; lookups never reorder.
type memoStore[E any] struct {
	clock   sturdyc.Clock
	ttl     time.Duration
	maxSize int
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*memoEntry[E]
	order   []string
	hits    uint64
	misses  uint64
	gen     uint64
	closed  bool

	timers *expiry.Scheduler
}

func newMemoStore[E any](o options) *memoStore[E] {
	s := &memoStore[E]{
		clock:   o.clock,
		ttl:     o.ttl,
		maxSize: o.maxSize,
		logger:  o.logger,
		entries: make(map[string]*memoEntry[E]),
	}
	s.timers = expiry.New(o.clock, s.onTimer)
	return s
}

// lookup returns the live result under key without touching the counters.
// An expired result is removed.
func (s *memoStore[E]) lookup(key string) (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero E
		return zero, false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		s.removeLocked(key)
		var zero E
		return zero, false
	}
	return e.value, true
}

func (s *memoStore[E]) record(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// put stores value under key, evicting the earliest inserted result first
// when the store is full.
func (s *memoStore[E]) put(key string, value E) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if _, ok := s.entries[key]; ok {
		s.removeLocked(key)
	} else if s.maxSize > 0 && len(s.entries) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		s.removeLocked(oldest)
		s.logger.Debug("memoized result evicted", slog.String("key", oldest))
	}

	s.gen++
	e := &memoEntry[E]{value: value, gen: s.gen}
	if s.ttl > 0 {
		e.expiresAt = s.clock.Now().Add(s.ttl)
		s.timers.Schedule(key, e.expiresAt, e.gen)
	}
	s.entries[key] = e
	s.order = append(s.order, key)
}

func (s *memoStore[E]) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	s.removeLocked(key)
	return true
}

// clear drops every result and resets the counters.
func (s *memoStore[E]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	s.entries = make(map[string]*memoEntry[E])
	s.order = nil
	s.hits = 0
	s.misses = 0
}

func (s *memoStore[E]) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Hits: s.hits, Misses: s.misses, Size: len(s.entries)}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// snapshot copies the stored results, expired ones included.
func (s *memoStore[E]) snapshot() map[string]E {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]E, len(s.entries))
	for key, e := range s.entries {
		out[key] = e.value
	}
	return out
}

func (s *memoStore[E]) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// close stops the expiry timers and drops every result. Later puts are ignored.
func (s *memoStore[E]) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// onTimer takes s.mu, so the scheduler is stopped unlocked.
	s.timers.Stop()

	s.mu.Lock()
	s.entries = make(map[string]*memoEntry[E])
	s.order = nil
	s.mu.Unlock()
}

func (s *memoStore[E]) removeLocked(key string) {
	delete(s.entries, key)
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.timers.Cancel(key)
}

func (s *memoStore[E]) onTimer(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.gen == gen {
		s.removeLocked(key)
	}
}
