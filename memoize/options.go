package memoize

import (
	"io"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-memocache/cache"
)

// KeyFunc derives the memo key of a call from its arguments.
type KeyFunc func(args ...any) string

// Option configures a memoized function.
type Option func(*options)

type options struct {
	ttl         time.Duration
	maxSize     int
	keyFn       KeyFunc
	cacheErrors bool
	clock       sturdyc.Clock
	logger      *slog.Logger
}

// WithTTL expires each result ttl after it was stored. Zero keeps results
// until they are deleted or evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithMaxSize bounds the number of memoized results. When full, the result
// stored earliest is evicted. Zero means unbounded.
func WithMaxSize(size int) Option {
	return func(o *options) {
		o.maxSize = size
	}
}

// WithKeyFn replaces cache.DeriveKey as the key function.
func WithKeyFn(fn KeyFunc) Option {
	return func(o *options) {
		o.keyFn = fn
	}
}

// WithCacheErrors makes the async memoizer keep failed results, so later
// calls with the same arguments get the same error without running fn again.
func WithCacheErrors(enabled bool) Option {
	return func(o *options) {
		o.cacheErrors = enabled
	}
}

// WithClock sets the clock used for expirations.
func WithClock(clock sturdyc.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the logger receiving debug events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&o,
			validation.Field(&o.ttl, validation.Min(time.Duration(0))),
			validation.Field(&o.maxSize, validation.Min(0)),
		)
	}, "invalid memoize options")
	if err != nil {
		return o, err
	}

	if o.keyFn == nil {
		o.keyFn = cache.DeriveKey
	}
	if o.clock == nil {
		o.clock = sturdyc.NewClock()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o, nil
}
