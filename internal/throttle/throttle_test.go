package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func assertOpen(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("%s resolved too early", what)
	case <-time.After(20 * time.Millisecond):
	}
}

type recorder struct {
	mu   sync.Mutex
	runs []string
}

func (r *recorder) job(name string, gate <-chan struct{}) Job {
	return func(ctx context.Context) error {
		r.mu.Lock()
		r.runs = append(r.runs, name)
		r.mu.Unlock()
		if gate != nil {
			<-gate
		}
		return nil
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func TestThrottleRunsFirstAndLatestOnly(t *testing.T) {
	th := New(nil)
	rec := &recorder{}
	gate := make(chan struct{})
	started := make(chan struct{})

	th.Run(func(ctx context.Context) error {
		close(started)
		return rec.job("a", gate)(ctx)
	})
	<-started
	th.Run(rec.job("b", nil))
	done := th.Run(rec.job("c", nil))
	close(gate)
	waitClosed(t, done, "drain")

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("expected [a c], got %v", got)
	}
}

func TestThrottleSupersededJobSeesCanceledContext(t *testing.T) {
	th := New(nil)
	started := make(chan struct{})
	observed := make(chan error, 1)

	th.Run(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return nil
	})
	<-started
	done := th.Run(func(context.Context) error { return nil })
	waitClosed(t, done, "drain")
	if err := <-observed; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled context, got %v", err)
	}
}

func TestThrottleOnIdleOnce(t *testing.T) {
	th := New(nil)
	waitClosed(t, th.OnIdleOnce(true), "idle resolve")

	notYet := th.OnIdleOnce(false)
	assertOpen(t, notYet, "OnIdleOnce(false) on idle throttle")

	gate := make(chan struct{})
	started := make(chan struct{})
	th.Run(func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	<-started
	second := make(chan struct{})
	th.Run(func(context.Context) error {
		<-second
		return nil
	})

	busy := th.OnIdleOnce(true)
	assertOpen(t, busy, "OnIdleOnce(true) while busy")
	close(gate)
	assertOpen(t, busy, "OnIdleOnce(true) before superseding job finished")
	close(second)
	waitClosed(t, busy, "idle after superseding job")
	waitClosed(t, notYet, "next idle transition")
	if th.Busy() {
		t.Fatal("expected throttle to be idle")
	}
}

func TestThrottleSurvivesFailingJobs(t *testing.T) {
	th := New(nil)
	waitClosed(t, th.Run(func(context.Context) error { return errors.New("boom") }), "failing job")
	waitClosed(t, th.Run(func(context.Context) error { panic("kaboom") }), "panicking job")

	ran := false
	waitClosed(t, th.Run(func(context.Context) error {
		ran = true
		return nil
	}), "healthy job")
	if !ran {
		t.Fatal("expected job after failures to run")
	}
}

func TestThrottleIdleListenersFireOncePerTransition(t *testing.T) {
	th := New(nil)
	var mu sync.Mutex
	calls := 0
	unsubscribe := th.OnIdle(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	gate := make(chan struct{})
	started := make(chan struct{})
	th.Run(func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	<-started
	th.Run(func(context.Context) error { return nil })
	done := th.Run(func(context.Context) error { return nil })
	close(gate)
	waitClosed(t, done, "drain")

	mu.Lock()
	if calls != 1 {
		mu.Unlock()
		t.Fatalf("expected one idle notification, got %d", calls)
	}
	mu.Unlock()

	unsubscribe()
	waitClosed(t, th.Run(func(context.Context) error { return nil }), "second burst")
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected unsubscribed listener to stay quiet, got %d calls", calls)
	}
}

func TestThrottleDisposeDropsListeners(t *testing.T) {
	th := New(nil)
	fired := false
	th.OnIdle(func() { fired = true })
	th.Dispose()
	waitClosed(t, th.Run(func(context.Context) error { return nil }), "run")
	if fired {
		t.Fatal("expected disposed listener not to fire")
	}
}
