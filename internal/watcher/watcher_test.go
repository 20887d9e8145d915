package watcher

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeask/internal/index"
	"codeask/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.JSONFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	var calls int64
	d := NewDebouncer(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		d.Trigger(func() { atomic.AddInt64(&calls, 1) })
	}

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected one coalesced execution, got %d", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	var calls int64
	d := NewDebouncer(30 * time.Millisecond)

	d.Trigger(func() { atomic.AddInt64(&calls, 1) })
	d.Cancel()

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt64(&calls) != 0 {
		t.Errorf("Cancelled trigger must not execute")
	}
}

func TestDebouncerFlushRunsImmediately(t *testing.T) {
	var calls int64
	d := NewDebouncer(time.Hour)

	d.Trigger(func() { atomic.AddInt64(&calls, 1) })
	d.Flush()

	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("Flush must run the pending function")
	}

	// Flushing again with nothing pending is a no-op.
	d.Flush()
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("Second flush must not re-run")
	}
}

func TestWatcherReportsRelevantChanges(t *testing.T) {
	tmpDir := t.TempDir()

	var mu sync.Mutex
	var got [][]string
	w, err := New(tmpDir, &index.Config{
		Extensions: []string{".rs"},
		Excludes:   []string{".codeask"},
	}, 50*time.Millisecond, testLogger(), func(paths []string) {
		mu.Lock()
		got = append(got, paths)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(tmpDir, "main.rs"), []byte("fn main() {}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	// Not allow-listed: never reported.
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("Expected a change report")
	}
	for _, batch := range got {
		for _, p := range batch {
			if p != "main.rs" {
				t.Errorf("Unexpected path reported: %s", p)
			}
		}
	}
}
