package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/revenueos/internal/dbtest"
)

func startTestWatcherNoCleanup(
	t *testing.T, onChange func([]string),
) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(50*time.Millisecond, onChange)
	require.NoError(t, err)
	unwatched, err := w.Watch(dir)
	require.NoError(t, err)
	require.Zero(t, unwatched)
	w.Start()
	return w, dir
}

func startTestWatcher(
	t *testing.T, onChange func([]string),
) (*Watcher, string) {
	t.Helper()
	w, dir := startTestWatcherNoCleanup(t, onChange)
	t.Cleanup(w.Stop)
	return w, dir
}

func waitWithTimeout(
	t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string,
) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

// pollUntil polls fn until it returns true or the timeout expires.
func pollUntil(
	t *testing.T, timeout, interval time.Duration, msg string,
	fn func() bool,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(interval)
	}
	if !fn() {
		t.Fatal(msg)
	}
}

func newMockWatcher(
	debounce time.Duration, onChange func([]string),
) *Watcher {
	return &Watcher{
		debounce: debounce,
		pending:  make(map[string]time.Time),
		onChange: onChange,
		now:      time.Now,
	}
}

func setPending(w *Watcher, path string, t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = t
}

func pendingCount(w *Watcher) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func TestWatcherCallsOnChange(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	_, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
	})

	path := filepath.Join(dir, "fleet.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	pollUntil(t, 5*time.Second, 20*time.Millisecond,
		"timed out waiting for onChange",
		func() bool {
			mu.Lock()
			defer mu.Unlock()
			return slices.Contains(got, path)
		},
	)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	var calls atomic.Int32
	w, dir := startTestWatcher(t, func(_ []string) { calls.Add(1) })

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Give the loop time to see the event and run several flushes.
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Zero(t, pendingCount(w))
}

func TestWatcherAutoWatchesNewDirs(t *testing.T) {
	var (
		mu  sync.Mutex
		all []string
	)
	w, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		all = append(all, paths...)
		mu.Unlock()
	})

	sub := filepath.Join(dir, "newdir")
	require.NoError(t, os.Mkdir(sub, 0o755))
	pollUntil(t, 5*time.Second, 10*time.Millisecond,
		"timed out waiting for watcher to add new directory",
		func() bool {
			return slices.Contains(w.watcher.WatchList(), sub)
		},
	)

	nested := filepath.Join(sub, "nested.jsonl")
	require.NoError(t, os.WriteFile(nested, []byte("{}\n"), 0o644))
	pollUntil(t, 5*time.Second, 20*time.Millisecond,
		"timed out waiting for nested file change",
		func() bool {
			mu.Lock()
			defer mu.Unlock()
			return slices.Contains(all, nested)
		},
	)
}

func TestWatcherFeedsImporter(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	im := NewImporter(d)
	_, dir := startTestWatcher(t, func(paths []string) {
		im.ImportPaths(paths)
	})

	path := filepath.Join(dir, "agents.jsonl")
	require.NoError(t, os.WriteFile(
		path, []byte(`{"kind":"agent","id":"forge"}`+"\n"), 0o644,
	))

	pollUntil(t, 5*time.Second, 20*time.Millisecond,
		"timed out waiting for import",
		func() bool {
			_, err := d.GetAgent(context.Background(), "forge")
			return err == nil
		},
	)
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, _ := startTestWatcherNoCleanup(t, func(_ []string) {})
	w.Stop()
	w.Stop()

	w2, _ := startTestWatcherNoCleanup(t, func(_ []string) {})
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(w2.Stop)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitWithTimeout(t, done, 5*time.Second, "concurrent Stop() timed out")
}

func TestWatchRejectsMissingDir(t *testing.T) {
	w, err := NewWatcher(time.Second, func(_ []string) {})
	require.NoError(t, err)
	defer w.Stop()

	_, err = w.Watch(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   fsnotify.Event
		pending bool
	}{
		{"write jsonl", fsnotify.Event{Name: "/tmp/a.jsonl", Op: fsnotify.Write}, true},
		{"create jsonl", fsnotify.Event{Name: "/tmp/a.jsonl", Op: fsnotify.Create}, true},
		{"write other", fsnotify.Event{Name: "/tmp/a.txt", Op: fsnotify.Write}, false},
		{"chmod", fsnotify.Event{Name: "/tmp/a.jsonl", Op: fsnotify.Chmod}, false},
		{"rename", fsnotify.Event{Name: "/tmp/a.jsonl", Op: fsnotify.Rename}, false},
		{"remove", fsnotify.Event{Name: "/tmp/a.jsonl", Op: fsnotify.Remove}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newMockWatcher(0, nil)
			w.handleEvent(tt.event)
			assert.Equal(t, tt.pending, pendingCount(w) == 1)
		})
	}
}

func TestFlushRespectsDebounce(t *testing.T) {
	var called atomic.Bool
	w := newMockWatcher(100*time.Millisecond,
		func(_ []string) { called.Store(true) },
	)
	setPending(w, "/tmp/recent.jsonl", time.Now())
	w.flush()

	assert.False(t, called.Load())
	assert.Equal(t, 1, pendingCount(w))
}

func TestFlushCallsOnChangeSorted(t *testing.T) {
	var got []string
	w := newMockWatcher(10*time.Millisecond,
		func(paths []string) { got = paths },
	)
	old := time.Now().Add(-50 * time.Millisecond)
	setPending(w, "/tmp/b.jsonl", old)
	setPending(w, "/tmp/a.jsonl", old)
	setPending(w, "/tmp/new.jsonl", time.Now().Add(time.Hour))
	w.flush()

	assert.Equal(t, []string{"/tmp/a.jsonl", "/tmp/b.jsonl"}, got)
	assert.Equal(t, 1, pendingCount(w))
}

func TestFlushNoopWhenEmpty(t *testing.T) {
	var called atomic.Bool
	w := newMockWatcher(10*time.Millisecond,
		func(_ []string) { called.Store(true) },
	)
	w.flush()
	assert.False(t, called.Load())
}

func TestNewWatcherInvalidArgs(t *testing.T) {
	_, err := NewWatcher(time.Second, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrInvalid)
	assert.Contains(t, err.Error(), "onChange callback is nil")

	_, err = NewWatcher(0, func(_ []string) {})
	assert.ErrorIs(t, err, os.ErrInvalid)
}
