package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-memocache/pkg/testsupport"
)

// mockCacheService returns a canned result from GetOrSet and Get.
type mockCacheService struct {
	CacheService
	result any
	err    error
}

func (m *mockCacheService) GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) (any, error) {
	return m.result, m.err
}

func (m *mockCacheService) Get(key string) (any, bool) {
	return m.result, m.err == nil
}

func newTestCache(t *testing.T, mutate func(*Config)) CacheService {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Clock = testsupport.NewTestClock()
	cfg.CleanupInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := NewCacheService(cfg)
	if err != nil {
		t.Fatalf("failed to create cache service: %v", err)
	}
	t.Cleanup(svc.Destroy)
	return svc
}

func TestGetOrSet_NilInterfaceNoPanic(t *testing.T) {
	mock := &mockCacheService{result: nil}

	type SomeInterface interface {
		DoSomething() string
	}

	result, err := GetOrSet[SomeInterface](context.Background(), mock, "test-key", func(ctx context.Context) (SomeInterface, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrSet_NilPointerNoPanic(t *testing.T) {
	mock := &mockCacheService{result: (*string)(nil)}

	result, err := GetOrSet[*string](context.Background(), mock, "test-key", func(ctx context.Context) (*string, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrSet_TypeAssertionFailure(t *testing.T) {
	mock := &mockCacheService{result: "wrong-type"}

	result, err := GetOrSet[int](context.Background(), mock, "test-key", func(ctx context.Context) (int, error) {
		return 42, nil
	})

	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType but got: %v", err)
	}
	if !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("expected bad input category, got: %v", err)
	}
	if result != 0 {
		t.Errorf("expected zero value (0) but got: %v", result)
	}
}

func TestGetOrSet_PropagatesServiceError(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockCacheService{err: boom}

	_, err := GetOrSet[int](context.Background(), mock, "test-key", func(ctx context.Context) (int, error) {
		return 0, nil
	})
	if err != boom {
		t.Errorf("expected error to be returned unchanged, got: %v", err)
	}
}

func TestGetOrSet_ReadThrough(t *testing.T) {
	svc := newTestCache(t, nil)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 7200, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrSet(ctx, svc, "sleep:2024-03-01", fetch, WithTag("sleep"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 7200 {
			t.Fatalf("expected 7200, got %d", got)
		}
	}

	if calls != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}

	stats := svc.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %+v", stats)
	}

	if removed := svc.DeleteByTag("sleep"); removed != 1 {
		t.Errorf("expected tag to be applied, removed %d", removed)
	}
}

func TestGetOrSet_FetchErrorIsNotCached(t *testing.T) {
	svc := newTestCache(t, nil)
	boom := errors.New("storage unavailable")

	_, err := GetOrSet(context.Background(), svc, "k", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if svc.Has("k") {
		t.Error("expected failed fetch not to be cached")
	}
}

func TestGet_Typed(t *testing.T) {
	svc := newTestCache(t, nil)
	svc.Set("weight", 71.4)

	if got, ok := Get[float64](svc, "weight"); !ok || got != 71.4 {
		t.Errorf("expected 71.4, got %v (ok=%v)", got, ok)
	}
	if got, ok := Get[string](svc, "weight"); ok || got != "" {
		t.Errorf("expected mismatched type to be reported absent, got %q (ok=%v)", got, ok)
	}
	if _, ok := Get[float64](svc, "missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestNewCacheService_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = -5

	if _, err := NewCacheService(cfg); !goerrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCacheService_Scenario(t *testing.T) {
	clock := testsupport.NewTestClock()
	svc := newTestCache(t, func(c *Config) {
		c.Clock = clock
		c.MaxSize = 2
	})

	svc.Set("a", 1, WithTTL(50*time.Millisecond))
	svc.Set("b", 2)
	svc.Set("c", 3, WithTTL(0))

	if svc.Has("a") {
		t.Error("expected a to be evicted by capacity")
	}

	svc.Set("d", 4, WithTTL(50*time.Millisecond))
	clock.Add(60 * time.Millisecond)

	if _, ok := svc.Get("d"); ok {
		t.Error("expected d to have expired")
	}
	if ttl := svc.GetTTL("c"); ttl != Forever {
		t.Errorf("expected c to never expire, got %v", ttl)
	}

	stats := svc.Stats()
	if stats.Evictions != 2 || stats.Expired != 1 {
		t.Errorf("expected 2 evictions and 1 expiration, got %+v", stats)
	}
}
