package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(data))
	if s == "bad" {
		return "", errors.New("bad content")
	}
	return s, nil
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[string]) *Watcher[string] {
	t.Helper()
	opts = append([]WatcherOption[string]{WithDebounce[string](30 * time.Millisecond)}, opts...)
	w := NewWatcher(path, readTrimmed, quietLogger(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, "initial")

	w := startWatcher(t, path)
	got := make(chan string, 4)
	w.OnReload(func(s string) { got <- s })

	writeFile(t, path, "updated")

	select {
	case s := <-got:
		if s != "updated" {
			t.Errorf("got %q, want updated", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherPicksUpRenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, "initial")

	w := startWatcher(t, path)
	got := make(chan string, 4)
	w.OnReload(func(s string) { got <- s })

	tmp := filepath.Join(dir, "settings.json.tmp")
	writeFile(t, tmp, "renamed")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-got:
		if s != "renamed" {
			t.Errorf("got %q, want renamed", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, "initial")

	w := startWatcher(t, path)
	var calls atomic.Int32
	w.OnReload(func(string) { calls.Add(1) })

	writeFile(t, filepath.Join(dir, "other.json"), "noise")
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for a sibling file", n)
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, "0")

	w := startWatcher(t, path, WithDebounce[string](150*time.Millisecond))
	var calls atomic.Int32
	last := make(chan string, 8)
	w.OnReload(func(s string) {
		calls.Add(1)
		last <- s
	})

	for _, v := range []string{"1", "2", "3", "4"} {
		writeFile(t, path, v)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case s := <-last:
		if s != "4" {
			t.Errorf("got %q, want final value 4", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherUnsubscribeAndPause(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, "initial")

	w := startWatcher(t, path)
	var removed, kept atomic.Int32
	unsubscribe := w.OnReload(func(string) { removed.Add(1) })
	got := make(chan struct{}, 4)
	w.OnReload(func(string) {
		kept.Add(1)
		got <- struct{}{}
	})
	unsubscribe()

	w.Pause(true)
	writeFile(t, path, "while paused")
	time.Sleep(200 * time.Millisecond)
	if kept.Load() != 0 {
		t.Fatal("handler called while paused")
	}

	w.Pause(false)
	writeFile(t, path, "resumed")
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if removed.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, "initial")

	errs := make(chan error, 4)
	w := startWatcher(t, path, WithErrorHandler[string](func(err error) { errs <- err }))
	var calls atomic.Int32
	w.OnReload(func(string) { calls.Add(1) })

	writeFile(t, path, "bad")

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error")
	}
	if calls.Load() != 0 {
		t.Error("reload handler called for failed load")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := NewWatcher("/nonexistent/settings.json", readTrimmed, quietLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop without Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error watching a missing directory")
	}
}
