package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Keyed holds an independent Throttle per key, created on first use. Keys
// are never evicted.
type Keyed[K comparable] struct {
	mu        sync.Mutex
	delay     time.Duration
	throttles map[K]*Throttle
	logger    *slog.Logger
}

// NewKeyed returns a Keyed throttle whose jobs wait delay before running.
func NewKeyed[K comparable](delay time.Duration, logger *slog.Logger) *Keyed[K] {
	return &Keyed[K]{
		delay:     delay,
		throttles: make(map[K]*Throttle),
		logger:    logger,
	}
}

// Run schedules job on the throttle for key. The job body starts after the
// debounce delay; if a newer job for the same key arrives during the delay,
// the waiting body is skipped and the newer job starts its own delay.
func (k *Keyed[K]) Run(key K, job Job) <-chan struct{} {
	if job == nil {
		return k.throttle(key).Run(nil)
	}
	k.mu.Lock()
	delay := k.delay
	k.mu.Unlock()
	return k.throttle(key).Run(func(ctx context.Context) error {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
		}
		return job(ctx)
	})
}

// SetDelay changes the debounce delay of jobs scheduled from now on.
func (k *Keyed[K]) SetDelay(delay time.Duration) {
	k.mu.Lock()
	k.delay = delay
	k.mu.Unlock()
}

// OnIdleOnce is Throttle.OnIdleOnce for key.
func (k *Keyed[K]) OnIdleOnce(key K, resolveIfIdle bool) <-chan struct{} {
	return k.throttle(key).OnIdleOnce(resolveIfIdle)
}

// Len returns the number of keys seen so far.
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.throttles)
}

// Dispose releases idle listeners on every per-key throttle.
func (k *Keyed[K]) Dispose() {
	k.mu.Lock()
	all := make([]*Throttle, 0, len(k.throttles))
	for _, t := range k.throttles {
		all = append(all, t)
	}
	k.mu.Unlock()
	for _, t := range all {
		t.Dispose()
	}
}

func (k *Keyed[K]) throttle(key K) *Throttle {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.throttles[key]
	if !ok {
		t = New(k.logger)
		k.throttles[key] = t
	}
	return t
}
