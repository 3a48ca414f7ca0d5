package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartRunsImmediately(t *testing.T) {
	var runs atomic.Int32
	p := New(time.Hour, func(context.Context) { runs.Add(1) })
	p.Start(context.Background())
	defer p.Stop()

	if runs.Load() != 1 {
		t.Errorf("runs after Start = %d, want 1", runs.Load())
	}
}

func TestRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	p := New(time.Second, func(context.Context) { runs.Add(1) })
	p.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no scheduled run")
		}
		time.Sleep(50 * time.Millisecond)
	}
	p.Stop()

	n := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	if runs.Load() != n {
		t.Error("ran after Stop")
	}
}

func TestMinimumInterval(t *testing.T) {
	p := New(10*time.Millisecond, func(context.Context) {})
	if p.Interval() != MinInterval {
		t.Errorf("Interval = %s", p.Interval())
	}
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(time.Hour, func(context.Context) {}).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStopWithoutStart(t *testing.T) {
	New(time.Second, func(context.Context) {}).Stop()
}
