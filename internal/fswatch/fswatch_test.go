package fswatch

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestExpandCreatedDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pkg")
	for _, rel := range []string{"a.ql", "sub/b.ql", "sub/deeper/c.ql"} {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got := Expand(Event{Kind: Created, Path: dir})
	paths := make([]string, 0, len(got))
	for _, ev := range got {
		if ev.Kind != Created {
			t.Fatalf("expanded event has kind %v", ev.Kind)
		}
		rel, _ := filepath.Rel(dir, ev.Path)
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)
	want := []string{"a.ql", "sub/b.ql", "sub/deeper/c.ql"}
	if len(paths) != len(want) {
		t.Fatalf("Expand = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Expand = %v, want %v", paths, want)
		}
	}
}

func TestExpandPassesThroughOtherEvents(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.ql")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := []Event{
		{Kind: Created, Path: file},
		{Kind: Deleted, Path: root},
		{Kind: Created, Path: filepath.Join(root, "gone")},
	}
	got := ExpandAll(events)
	if len(got) != len(events) {
		t.Fatalf("ExpandAll = %v", got)
	}
	for i := range events {
		if got[i] != events[i] {
			t.Fatalf("event %d changed: %v -> %v", i, events[i], got[i])
		}
	}
}

func TestWatcherReportsNewFilesInNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.AddRecursive(root); err != nil {
		t.Fatalf("AddRecursive: %v", err)
	}

	dir := filepath.Join(root, "sub")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitFor(t, w, Event{Kind: Created, Path: dir})

	file := filepath.Join(dir, "a.ql")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, w, Event{Kind: Created, Path: file})

	if err := os.Remove(file); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, w, Event{Kind: Deleted, Path: file})
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Fatalf("events channel still open")
	}
	if err := w.AddRecursive(t.TempDir()); err != ErrClosed {
		t.Fatalf("AddRecursive after Close = %v", err)
	}
}

func waitFor(t *testing.T, w *Watcher, want Event) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v %s", want.Kind, want.Path)
		}
	}
}
