package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.json")
	testData := map[string]any{
		"name":  "test",
		"value": 42,
		"items": []string{"a", "b", "c"},
	}

	jsonData, err := json.Marshal(testData)
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}

	if err := os.WriteFile(testFile, jsonData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result map[string]any
	LoadFixtureJSON(t, testFile, &result)

	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["value"] != float64(42) { // JSON unmarshals numbers as float64
		t.Errorf("expected value=42, got %v", result["value"])
	}
}

func TestFixturePath(t *testing.T) {
	if got, want := FixturePath("keys.json"), filepath.Join("testdata", "keys.json"); got != want {
		t.Errorf("FixturePath() = %q, want %q", got, want)
	}
}

func TestNewTestClock(t *testing.T) {
	clock := NewTestClock()
	if !clock.Now().Equal(Epoch) {
		t.Fatalf("expected clock to start at %v, got %v", Epoch, clock.Now())
	}

	timer, _ := clock.NewTimer(time.Minute)
	clock.Add(time.Minute)

	select {
	case <-timer:
	default:
		t.Error("expected timer to fire once the clock advanced past it")
	}
}

func TestEventually(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(5 * time.Millisecond)
		flag.Store(true)
	}()

	Eventually(t, time.Second, flag.Load)
}

func TestNever(t *testing.T) {
	Never(t, 10*time.Millisecond, func() bool { return false })
}
