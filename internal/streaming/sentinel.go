package streaming

import (
	"context"
	"sync"
)

// Reasons passed to a sentinel's cleanup.
const (
	ReasonClientGone  = "client disconnected"
	ReasonWriteFailed = "response write failed"
)

// Sentinel converges every way a response can end early on one cleanup call.
type Sentinel struct {
	cleanup func(reason string)

	once   sync.Once
	fired  chan struct{}
	stop   chan struct{}
	stopMu sync.Once

	mu     sync.Mutex
	reason string
}

// Watch arms a sentinel on ctx (normally the request context, which net/http
// cancels when the client goes away). The first of ctx cancellation or a
// Trigger call runs cleanup; every later signal is a no-op. Stop disarms the
// watcher without firing.
func Watch(ctx context.Context, cleanup func(reason string)) *Sentinel {
	s := &Sentinel{
		cleanup: cleanup,
		fired:   make(chan struct{}),
		stop:    make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Trigger(ReasonClientGone)
		case <-s.stop:
		}
	}()

	return s
}

// Trigger fires the sentinel with reason unless it has already fired. It
// returns true for the call that actually ran cleanup.
func (s *Sentinel) Trigger(reason string) bool {
	fired := false
	s.once.Do(func() {
		fired = true
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		if s.cleanup != nil {
			s.cleanup(reason)
		}
		close(s.fired)
		s.Stop()
	})
	return fired
}

// Fired is closed after cleanup has run.
func (s *Sentinel) Fired() <-chan struct{} {
	return s.fired
}

// Reason returns the reason given by the firing signal, or "".
func (s *Sentinel) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stop releases the watcher goroutine. The sentinel can still be fired
// manually afterwards.
func (s *Sentinel) Stop() {
	s.stopMu.Do(func() { close(s.stop) })
}
