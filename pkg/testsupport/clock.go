package testsupport

import (
	"testing"
	"time"

	"github.com/viccon/sturdyc"
)

// Epoch is the starting instant of clocks returned by NewTestClock.
var Epoch = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// NewTestClock returns a manually advanced clock set to Epoch.
// Timers and tickers created from it fire when Add moves time past them.
func NewTestClock() *sturdyc.TestClock {
	return sturdyc.NewTestClock(Epoch)
}

// Eventually polls cond until it returns true or timeout elapses.
// Use it for effects that land on a background goroutine, such as an
// expiration firing after the test clock has been advanced.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			if len(msgAndArgs) > 0 {
				if format, ok := msgAndArgs[0].(string); ok {
					t.Fatalf(format, msgAndArgs[1:]...)
				}
			}
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// Never asserts that cond stays false for the whole window.
func Never(t testing.TB, window time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			if len(msgAndArgs) > 0 {
				if format, ok := msgAndArgs[0].(string); ok {
					t.Fatalf(format, msgAndArgs[1:]...)
				}
			}
			t.Fatalf("condition became true within %v", window)
		}
		time.Sleep(time.Millisecond)
	}
}
