package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSentinel_ContextCancelFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	s := Watch(ctx, func(string) { calls.Add(1) })

	cancel()

	select {
	case <-s.Fired():
	case <-time.After(2 * time.Second):
		t.Fatal("sentinel did not fire on context cancel")
	}

	if calls.Load() != 1 {
		t.Errorf("cleanup called %d times, want 1", calls.Load())
	}
	if s.Reason() != ReasonClientGone {
		t.Errorf("Reason() = %q, want %q", s.Reason(), ReasonClientGone)
	}
}

func TestSentinel_FirstSignalWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s := Watch(ctx, func(string) { calls.Add(1) })

	if !s.Trigger(ReasonWriteFailed) {
		t.Error("First Trigger should report that it fired")
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Trigger("test") {
				t.Error("Later Trigger reported firing")
			}
		}()
	}
	cancel()
	wg.Wait()

	// Give the watcher goroutine a chance to observe the cancel.
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("cleanup called %d times, want 1", calls.Load())
	}
	if s.Reason() != ReasonWriteFailed {
		t.Errorf("Reason() = %q, want %q", s.Reason(), ReasonWriteFailed)
	}
	select {
	case <-s.Fired():
	default:
		t.Error("Fired() not closed after Trigger")
	}
}

func TestSentinel_StopDisarms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	s := Watch(ctx, func(string) { calls.Add(1) })

	s.Stop()
	s.Stop()
	cancel()
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 0 {
		t.Error("Stopped sentinel fired on context cancel")
	}

	// Manual trigger still works after Stop.
	s.Trigger("test")
	if calls.Load() != 1 {
		t.Errorf("cleanup called %d times after manual trigger, want 1", calls.Load())
	}
}

func TestSentinel_NilCleanup(t *testing.T) {
	s := Watch(context.Background(), nil)
	defer s.Stop()

	if !s.Trigger("test") {
		t.Error("Trigger with nil cleanup should still fire")
	}
}
