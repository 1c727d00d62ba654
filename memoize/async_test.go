package memoize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-memocache/pkg/testsupport"
)

// waitIdle blocks until no computation is in flight, which also means every
// settled result has been cached.
func waitIdle[V any](t *testing.T, m *AsyncMemoized[V]) {
	t.Helper()
	testsupport.Eventually(t, time.Second, func() bool {
		return m.InFlight() == 0
	}, "expected in-flight computations to finish")
}

func TestMemoizeAsync_DeduplicatesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	m, err := MemoizeAsync(func(ctx context.Context, args ...any) (string, error) {
		calls.Add(1)
		<-release
		return "summary:" + args[0].(string), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	results := make([]string, 5)
	errs := make([]error, 5)
	futures := make([]*Future[string], 5)

	var started, done sync.WaitGroup
	started.Add(5)
	done.Add(5)
	for i := 0; i < 5; i++ {
		go func(i int) {
			defer done.Done()
			futures[i] = m.Go(ctx, "2024-W09")
			started.Done()
			results[i], errs[i] = futures[i].Wait(ctx)
		}(i)
	}

	started.Wait()
	if got := m.InFlight(); got != 1 {
		t.Errorf("expected one computation in flight, got %d", got)
	}
	close(release)
	done.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one invocation, got %d", got)
	}
	for i := 0; i < 5; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "summary:2024-W09" {
			t.Errorf("caller %d: unexpected result %q", i, results[i])
		}
		if futures[i] != futures[0] {
			t.Errorf("caller %d: expected the shared future", i)
		}
	}

	stats := m.Stats()
	if stats.Misses != 1 || stats.Hits != 4 {
		t.Errorf("expected 1 miss and 4 hits, got %+v", stats)
	}
}

func TestMemoizeAsync_CachesSuccess(t *testing.T) {
	var calls atomic.Int32
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return args[0].(int) * 2, nil
	})
	defer m.Close()

	ctx := context.Background()
	if got, err := m.Call(ctx, 21); err != nil || got != 42 {
		t.Fatalf("expected 42, got %d, %v", got, err)
	}
	waitIdle(t, m)

	if !m.Has(21) {
		t.Fatal("expected result to be cached")
	}
	if got, err := m.Call(ctx, 21); err != nil || got != 42 {
		t.Fatalf("expected cached 42, got %d, %v", got, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected one invocation, got %d", got)
	}

	f, ok := m.Get(21)
	if !ok {
		t.Fatal("expected Get to return the cached future")
	}
	if v, err := f.Result(); err != nil || v != 42 {
		t.Errorf("expected settled 42, got %d, %v", v, err)
	}
}

func TestMemoizeAsync_ErrorsNotCachedByDefault(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("storage offline")
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return 0, boom
	})
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := m.Call(ctx, "k"); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		waitIdle(t, m)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("expected each call to retry, got %d invocations", got)
	}
	if m.Has("k") {
		t.Error("expected failure not to be cached")
	}
}

// slowHandler is a slog handler that takes a while to write each record.
type slowHandler struct{}

func (slowHandler) Enabled(context.Context, slog.Level) bool { return true }

func (slowHandler) Handle(context.Context, slog.Record) error {
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (h slowHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h slowHandler) WithGroup(string) slog.Handler { return h }

func TestMemoizeAsync_SequentialCallsRetryFailures(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("sync service unavailable")
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return 0, boom
	}, WithLogger(slog.New(slowHandler{})))
	defer m.Close()

	ctx := context.Background()
	const rounds = 20
	for i := 0; i < rounds; i++ {
		if _, err := m.Call(ctx, i); !errors.Is(err, boom) {
			t.Fatalf("round %d: expected boom on first call, got %v", i, err)
		}
		if _, err := m.Call(ctx, i); !errors.Is(err, boom) {
			t.Fatalf("round %d: expected boom on second call, got %v", i, err)
		}
	}

	if got := calls.Load(); got != 2*rounds {
		t.Errorf("expected every sequential call to invoke fn, got %d of %d", got, 2*rounds)
	}
	if stats := m.Stats(); stats.Hits != 0 || stats.Misses != 2*rounds {
		t.Errorf("expected only misses, got %+v", stats)
	}
}

func TestMemoizeAsync_SequentialCallsHitCachedSuccess(t *testing.T) {
	var calls atomic.Int32
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return args[0].(int) + 1, nil
	}, WithLogger(slog.New(slowHandler{})))
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		first, _ := m.Call(ctx, i)
		second, err := m.Call(ctx, i)
		if err != nil || second != first {
			t.Fatalf("round %d: expected cached %d, got %d, %v", i, first, second, err)
		}
	}

	if got := calls.Load(); got != 20 {
		t.Errorf("expected one invocation per key, got %d", got)
	}
}

func TestMemoizeAsync_CacheErrors(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("storage offline")
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return 0, boom
	}, WithCacheErrors(true))
	defer m.Close()

	ctx := context.Background()
	first := m.Go(ctx, "k")
	if _, err := first.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	waitIdle(t, m)

	second := m.Go(ctx, "k")
	if second != first {
		t.Error("expected the rejected future to be returned again")
	}
	if _, err := second.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("expected cached boom, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected one invocation, got %d", got)
	}
}

func TestMemoizeAsync_RecoversPanics(t *testing.T) {
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		panic("division by zero")
	})
	defer m.Close()

	_, err := m.Call(context.Background(), 1)
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !goerrors.IsInternal(err) {
		t.Errorf("expected internal category, got %v", err)
	}
	waitIdle(t, m)

	if m.Has(1) {
		t.Error("expected panic result not to be cached")
	}
}

func TestMemoizeAsync_CallerCancellationDoesNotCancelComputation(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	seenErr := make(chan error, 1)

	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (string, error) {
		calls.Add(1)
		<-release
		seenErr <- ctx.Err()
		return "done", nil
	})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := m.Go(ctx, "k")
	cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the waiter to observe its cancellation, got %v", err)
	}
	if f.Settled() {
		t.Fatal("expected computation to still be running")
	}
	if _, err := f.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending before settling, got %v", err)
	}

	close(release)

	if err := <-seenErr; err != nil {
		t.Errorf("expected fn context to outlive the caller, got %v", err)
	}
	if got, err := m.Call(context.Background(), "k"); err != nil || got != "done" {
		t.Errorf("expected done, got %q, %v", got, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected one invocation, got %d", got)
	}
}

func TestMemoizeAsync_MaxSizeAndTTL(t *testing.T) {
	clock := testsupport.NewTestClock()
	var calls atomic.Int32
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		return args[0].(int), nil
	}, WithMaxSize(2), WithTTL(time.Minute), WithClock(clock))
	defer m.Close()

	ctx := context.Background()
	for _, n := range []int{1, 2, 3} {
		if _, err := m.Call(ctx, n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		waitIdle(t, m)
	}

	if m.Has(1) {
		t.Error("expected 1 to be evicted")
	}
	if !m.Has(2) || !m.Has(3) {
		t.Error("expected 2 and 3 to remain")
	}

	clock.Add(2 * time.Minute)
	if m.Has(2) || m.Has(3) {
		t.Error("expected results to expire")
	}

	m.Call(ctx, 2)
	if got := calls.Load(); got != 4 {
		t.Errorf("expected recomputation after expiry, got %d invocations", got)
	}
}

func TestMemoizeAsync_DeleteAndClear(t *testing.T) {
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		return 1, nil
	})
	defer m.Close()

	ctx := context.Background()
	m.Call(ctx, "a")
	m.Call(ctx, "b")
	waitIdle(t, m)

	if len(m.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Entries()))
	}
	if !m.Delete(m.Key("a")) {
		t.Error("expected Delete to report the cached key")
	}

	m.Clear()
	if stats := m.Stats(); stats != (Stats{}) {
		t.Errorf("expected Clear to reset everything, got %+v", stats)
	}
}

func TestMemoizeAsync_InvalidArguments(t *testing.T) {
	if _, err := MemoizeAsync[int](nil); !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("expected bad input error for nil fn, got %v", err)
	}

	_, err := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		return 0, nil
	}, WithMaxSize(-3))
	if !goerrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestMemoizeAsync_ManyKeysConcurrently(t *testing.T) {
	var calls atomic.Int32
	m, _ := MemoizeAsync(func(ctx context.Context, args ...any) (int, error) {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return args[0].(int) + 1, nil
	})
	defer m.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				got, err := m.Call(ctx, n)
				if err != nil || got != n+1 {
					t.Errorf("expected %d, got %d, %v", n+1, got, err)
				}
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 20 {
		t.Errorf("expected one invocation per key, got %d", got)
	}
}
