package fswatch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"quill/internal/logging"
)

// ErrClosed is returned by operations on a closed Watcher.
var ErrClosed = errors.New("watcher closed")

// Watcher watches directory trees. New subdirectories are picked up as they
// appear. Events are delivered in order and never dropped; a slow consumer
// slows the watcher down.
type Watcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	watched map[string]bool
	closed  bool

	events  chan Event
	errors  chan error
	closeCh chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func New(logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		watched: make(map[string]bool),
		events:  make(chan Event, 64),
		errors:  make(chan error, 8),
		closeCh: make(chan struct{}),
		logger:  logging.OrDiscard(logger),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Events returns the event stream. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns watcher errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// AddRecursive watches root and every directory beneath it. Hidden
// directories are skipped.
func (w *Watcher) AddRecursive(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.watched[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = true
	return nil
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for dir := range w.watched {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.watched, dir)
		}
	}
}

// Close stops the watcher and closes both channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case fe, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(fe)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(fe fsnotify.Event) {
	var kind Kind
	switch {
	case fe.Has(fsnotify.Create):
		kind = Created
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		kind = Deleted
	case fe.Has(fsnotify.Write):
		kind = Changed
	default:
		return
	}
	switch kind {
	case Created:
		if info, err := os.Stat(fe.Name); err == nil && info.IsDir() {
			if err := w.AddRecursive(fe.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", fe.Name, "err", err)
			}
		}
	case Deleted:
		w.forget(fe.Name)
	}
	w.send(Event{Kind: kind, Path: fe.Name})
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	case <-w.closeCh:
	}
}
