package taskpool

import "sync/atomic"

// lightSemaphore is a userspace counting semaphore with a spin-then-sleep
// fast path, ported from src/semaphore.h's LightweightSemaphore: a CAS loop
// over an atomic counter, falling back to a blocking channel receive (the
// role the OS semaphore plays in the C++ original) only once the spin
// budget is exhausted.
type lightSemaphore struct {
	count atomic.Int64
	sema  chan struct{}
}

func newLightSemaphore(initial int64) *lightSemaphore {
	s := &lightSemaphore{sema: make(chan struct{}, 1<<30)}
	s.count.Store(initial)
	return s
}

const semaphoreSpinCount = 10000

// tryWait attempts a single non-blocking decrement.
func (s *lightSemaphore) tryWait() bool {
	old := s.count.Load()
	for old > 0 {
		if s.count.CompareAndSwap(old, old-1) {
			return true
		}
		old = s.count.Load()
	}
	return false
}

// wait decrements the counter, spinning briefly before blocking. Mirrors
// waitWithPartialSpinning: most contention resolves in the spin window,
// avoiding a channel receive's scheduling cost.
func (s *lightSemaphore) wait() {
	if s.tryWait() {
		return
	}
	for i := 0; i < semaphoreSpinCount; i++ {
		old := s.count.Load()
		if old > 0 && s.count.CompareAndSwap(old, old-1) {
			return
		}
	}
	if s.count.Add(-1) < 0 {
		<-s.sema
	}
}

// signal adds count to the counter and wakes at most min(-old, count)
// blocked waiters, exactly as LightweightSemaphore::signal does.
func (s *lightSemaphore) signal(count int64) {
	old := s.count.Add(count) - count
	toRelease := -old
	if toRelease > count {
		toRelease = count
	}
	for i := int64(0); i < toRelease; i++ {
		s.sema <- struct{}{}
	}
}

// autoResetEvent caps a lightSemaphore's effective count at 1: signalled,
// reset, or reset-with-N-waiters. Ported from auto_reset_event in
// src/semaphore.h; Pool uses one per worker to park/unpark on idleness.
type autoResetEvent struct {
	status atomic.Int64
	sema   *lightSemaphore
}

func newAutoResetEvent() *autoResetEvent {
	return &autoResetEvent{sema: newLightSemaphore(0)}
}

// signal wakes up to count waiters, or leaves the event signalled for the
// next waiter if nobody is currently blocked.
func (e *autoResetEvent) signal(count int64) {
	old := e.status.Load()
	for {
		next := old
		if old < 1 {
			next = old + 1
		} else {
			next = 1
		}
		if e.status.CompareAndSwap(old, next) {
			break
		}
		old = e.status.Load()
	}
	if old < 0 {
		e.sema.signal(count)
	}
}

// wait blocks until the event is signalled. Tolerates spurious wakeups:
// callers loop on an external predicate, per the C1 contract in spec §4.1.
func (e *autoResetEvent) wait() {
	old := e.status.Add(-1) + 1
	if old < 1 {
		e.sema.wait()
	}
}
