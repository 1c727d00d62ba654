package cacheinfra

import (
	"io"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the in-memory cache service.
type Config struct {
	// DefaultTTL is applied to entries stored without an explicit TTL.
	// Zero means entries live until deleted or evicted.
	// Must not be negative. Default: 5 minutes
	DefaultTTL time.Duration

	// MaxSize is the maximum number of entries held at once. When the cache
	// is full, storing a new key evicts the entry created earliest.
	// Zero disables the bound. Must not be negative. Default: 1000
	MaxSize int

	// CleanupOnAccess removes expired entries when a read finds them.
	// When disabled they are reported as absent but left for the timer
	// or the periodic sweep to reclaim. Default: true
	CleanupOnAccess bool

	// CleanupInterval sets how often the cache sweeps expired entries.
	// Zero disables the periodic sweep. Must not be negative. Default: 1 minute
	CleanupInterval time.Duration

	// Clock drives expirations and the sweep. Nil uses the wall clock.
	Clock sturdyc.Clock

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger

	// Metrics receives hit, miss, eviction and expiration events.
	Metrics MetricsRecorder
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		MaxSize:         1000,
		CleanupOnAccess: true,
		CleanupInterval: time.Minute,
	}
}

// Validate checks if the configuration values are valid.
// Returns a go-errors validation error listing every invalid field.
func (c Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.DefaultTTL, validation.Min(time.Duration(0))),
			validation.Field(&c.MaxSize, validation.Min(0)),
			validation.Field(&c.CleanupInterval, validation.Min(time.Duration(0))),
		)
	}, "invalid cache configuration")
	if err != nil {
		return err
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = sturdyc.NewClock()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	return c
}
