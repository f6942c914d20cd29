// Package throttle provides single-flight job runners with a one-slot,
// latest-wins pending buffer.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"quill/internal/logging"
)

// Job is a unit of work run by a Throttle. ctx is canceled as soon as a
// newer job is queued behind it; jobs are free to ignore that signal.
type Job func(ctx context.Context) error

// Throttle runs at most one Job at a time. While a job executes, Run stores
// the new job in a single pending slot, overwriting any job already waiting
// there. Overwritten jobs never run.
type Throttle struct {
	mu        sync.Mutex
	busy      bool
	pending   Job
	supersede context.CancelFunc
	waiters   []chan struct{}
	listeners map[uint64]func()
	nextID    uint64
	logger    *slog.Logger
}

// New returns an idle Throttle. A nil logger discards job failures.
func New(logger *slog.Logger) *Throttle {
	return &Throttle{
		listeners: make(map[uint64]func()),
		logger:    logging.OrDiscard(logger),
	}
}

// Run schedules job. The returned channel is closed on the next transition
// to idle, after job (or whatever job superseded it) has settled.
func (t *Throttle) Run(job Job) <-chan struct{} {
	done := make(chan struct{})
	if job == nil {
		close(done)
		return done
	}
	t.mu.Lock()
	t.waiters = append(t.waiters, done)
	if t.busy {
		t.pending = job
		if t.supersede != nil {
			t.supersede()
		}
		t.mu.Unlock()
		return done
	}
	t.busy = true
	ctx, cancel := context.WithCancel(context.Background())
	t.supersede = cancel
	t.mu.Unlock()

	go t.drain(ctx, cancel, job)
	return done
}

// Busy reports whether a job is currently executing.
func (t *Throttle) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// OnIdle registers fn to be called on every transition to idle.
func (t *Throttle) OnIdle(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	if t.listeners == nil {
		t.listeners = make(map[uint64]func())
	}
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// OnIdleOnce returns a channel closed on the next transition to idle. When
// resolveIfIdle is set and nothing is running, the channel is already closed.
func (t *Throttle) OnIdleOnce(resolveIfIdle bool) <-chan struct{} {
	done := make(chan struct{})
	t.mu.Lock()
	if resolveIfIdle && !t.busy {
		t.mu.Unlock()
		close(done)
		return done
	}
	t.waiters = append(t.waiters, done)
	t.mu.Unlock()
	return done
}

// Dispose drops all idle listeners. Pending waiters are still released.
func (t *Throttle) Dispose() {
	t.mu.Lock()
	t.listeners = make(map[uint64]func())
	t.mu.Unlock()
}

func (t *Throttle) drain(ctx context.Context, cancel context.CancelFunc, job Job) {
	for {
		t.execute(ctx, job)
		cancel()

		t.mu.Lock()
		next := t.pending
		t.pending = nil
		if next == nil {
			t.busy = false
			t.supersede = nil
			waiters := t.waiters
			t.waiters = nil
			listeners := make([]func(), 0, len(t.listeners))
			for _, fn := range t.listeners {
				listeners = append(listeners, fn)
			}
			t.mu.Unlock()

			for _, fn := range listeners {
				fn()
			}
			for _, w := range waiters {
				close(w)
			}
			return
		}
		ctx, cancel = context.WithCancel(context.Background())
		t.supersede = cancel
		t.mu.Unlock()
		job = next
	}
}

func (t *Throttle) execute(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("throttled job panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := job(ctx); err != nil {
		t.logger.Error("throttled job failed", "err", err)
	}
}
