package cacheinfra

import (
	"context"
	"math"
	"time"
)

// Forever is reported by GetTTL for entries that never expire.
const Forever = time.Duration(math.MaxInt64)

// Entry is one key and value written by SetMultiple.
type Entry struct {
	Key   string
	Value any
}

// Factory computes a value on a cache miss.
type Factory func(ctx context.Context) (any, error)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Size      int     `json:"size"`
	Expired   uint64  `json:"expired"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// SetOption customizes a single write.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
	tag string
}

// WithTTL overrides the default TTL for a write. Zero or negative values
// store the entry without expiration.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// WithTag labels the entry so it can be removed with DeleteByTag.
func WithTag(tag string) SetOption {
	return func(o *setOptions) {
		o.tag = tag
	}
}

func resolveSetOptions(defaultTTL time.Duration, opts []SetOption) setOptions {
	o := setOptions{ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// MetricsRecorder is notified about cache events.
type MetricsRecorder interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}
