package taskpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// poolState values, following FastState's cache-friendly atomic-CAS state
// machine style from eventloop/state.go, sized down to this pool's needs.
const (
	poolAwake int32 = iota
	poolRunning
	poolShuttingDown
	poolStopped
)

// Pool owns N worker goroutines, each with its own Deque, implementing the
// work-stealing scheduler of spec §4.4. It is the Go-native descendant of
// the teacher's WorkerPool: same Config/Metrics shape, but the job-queue
// distribution strategies are replaced by the persistent deque-per-worker
// core the spec requires, with RoundRobin/Chunked demoted to optional
// batch-seeding helpers (see the strategies package).
type Pool struct {
	cfg     Config
	workers []*WorkerContext
	metrics *Metrics
	logger  zerolog.Logger
	io      *ioBridge

	state      atomic.Int32
	wg         sync.WaitGroup
	stopOnce   sync.Once
	shutdownCh chan struct{}

	onPanic func(workerID int, task Task, recovered any)
	onError func(workerID int, task Task, err error)
}

// NewPool constructs a Pool. It does not start any goroutines; call Run.
func NewPool(opts ...Option) *Pool {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	p := &Pool{
		cfg:        cfg,
		metrics:    newMetrics(),
		logger:     cfg.Logger,
		shutdownCh: make(chan struct{}),
	}
	p.onPanic = func(workerID int, task Task, recovered any) {
		p.logger.Error().Int("worker", workerID).Interface("panic", recovered).Msg("task panic recovered")
	}

	p.workers = make([]*WorkerContext, cfg.NumWorkers)
	for i := range p.workers {
		deque := NewDeque[Task](cfg.DequeCapacity)
		p.workers[i] = newWorkerContext(i, p, deque, newAutoResetEvent())
	}

	p.io = newIOBridge(p, cfg.IOPollTimeout, cfg.IOFastPathRetries)
	return p
}

// NumWorkers returns the configured worker count.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// Metrics returns the pool's live metrics (safe to read concurrently with Run).
func (p *Pool) Metrics() *Metrics { return p.metrics }

// OnPanic overrides the handler invoked when a Task.Execute panics. The
// default logs via the pool's zerolog.Logger and counts it in Metrics;
// per spec §7, a panic inside user code is not otherwise caught or retried
// by the core — this hook is the one place the workload can observe it.
func (p *Pool) OnPanic(f func(workerID int, task Task, recovered any)) {
	p.onPanic = f
}

// OnError installs a handler invoked whenever a Task.Execute returns a
// non-nil error (panics go through OnPanic instead). The default logs via
// the pool's zerolog.Logger. The error is also recorded on the task's own
// TaskBase and propagated (first-error-wins) onto its continuation, so a
// join can inspect TaskBase.Err() once its ref count reaches zero — per
// spec §7, the scheduler never silently swallows a user error even when the
// workload does not install this hook.
func (p *Pool) OnError(f func(workerID int, task Task, err error)) {
	p.onError = f
}

// Submit enqueues t onto worker 0's deque. Intended for the initial task of
// a computation, submitted before Run — mirroring the original's pattern of
// calling spawn() on the main thread immediately before
// join_main_thread_to_pool, when current_worker_id is already 0.
func (p *Pool) Submit(t Task) error {
	return p.spawnOnLocked(0, t)
}

// Spawn enqueues t onto the deque of the worker currently executing, as
// identified by tc (spec §6, spawn(task)).
func (p *Pool) Spawn(tc *TaskContext, t Task) error {
	return p.spawnOnLocked(tc.workerID, t)
}

// SpawnOn enqueues t onto a specific worker's deque (spec §6, spawn(worker_id,
// task)) — required for I/O resumption locality, and available to
// external callers before Run for seeding multiple workers at once.
func (p *Pool) SpawnOn(workerID int, t Task) error {
	return p.spawnOnLocked(workerID, t)
}

func (p *Pool) spawnOnLocked(workerID int, t Task) error {
	if workerID < 0 || workerID >= len(p.workers) {
		return ErrInvalidWorkerID
	}
	wc := p.workers[workerID]
	if !wc.deque.Push(&t) {
		return ErrDequeOverflow
	}
	p.metrics.tasksSpawned.Add(1)
	// Open question #1 (SPEC_FULL §7): always signal, even if the deque
	// wasn't previously empty. A redundant wake is cheap and avoids the
	// lost-wakeup race an empty-check would risk.
	wc.event.signal(1)
	return nil
}

// Run starts NumWorkers()-1 additional worker goroutines and turns the
// calling goroutine into worker 0, blocking until ctx is cancelled or
// Shutdown is called (spec §4.4/§6, join_main_thread_to_pool).
func (p *Pool) Run(ctx context.Context) error {
	if _, ok := taskContextFrom(ctx); ok {
		return ErrReentrantJoin
	}
	if !p.state.CompareAndSwap(poolAwake, poolRunning) {
		return ErrAlreadyRunning
	}
	p.metrics.markStart()
	defer p.metrics.markEnd()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.io.start(); err != nil {
		p.state.Store(poolStopped)
		return err
	}
	defer p.io.stop()

	for i := 1; i < len(p.workers); i++ {
		p.wg.Add(1)
		go p.workerLoop(p.workers[i], runCtx)
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Shutdown()
		case <-p.shutdownCh:
		}
	}()

	p.wg.Add(1)
	p.workerLoop(p.workers[0], runCtx)

	p.wg.Wait()
	p.state.Store(poolStopped)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Shutdown requests that all workers drain and stop. Safe to call multiple
// times and from any goroutine, including a Task's own Execute.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.state.CompareAndSwap(poolRunning, poolShuttingDown)
		close(p.shutdownCh)
		for _, wc := range p.workers {
			wc.event.signal(1)
		}
	})
}

func (p *Pool) isShuttingDown() bool {
	s := p.state.Load()
	return s == poolShuttingDown || s == poolStopped
}

// workerLoop is the per-worker scheduling loop of spec §4.4: try the local
// deque, then round-robin steal, then park after StealAttemptsBeforePark
// consecutive empty rounds.
func (p *Pool) workerLoop(wc *WorkerContext, ctx context.Context) {
	defer p.wg.Done()

	victim := wc.id
	empty := 0
	for {
		t, ok := wc.deque.PopLocal()
		if !ok {
			t, ok = p.steal(wc, &victim)
		}
		if ok {
			empty = 0
			p.dispatch(wc, t, ctx)
			continue
		}

		if p.isShuttingDown() && p.allDequesEmpty() {
			return
		}

		empty++
		if empty < p.cfg.StealAttemptsBeforePark {
			continue
		}
		empty = 0
		p.metrics.parkEvents.Add(1)
		wc.event.wait()
		if p.isShuttingDown() && p.allDequesEmpty() {
			return
		}
	}
}

func (p *Pool) allDequesEmpty() bool {
	for _, wc := range p.workers {
		if !wc.deque.IsEmpty() {
			return false
		}
	}
	return true
}

// steal tries every peer once, round-robin starting from *victim, per
// spec §4.4's "round-robin victim" policy.
func (p *Pool) steal(wc *WorkerContext, victim *int) (Task, bool) {
	n := len(p.workers)
	for i := 0; i < n-1; i++ {
		*victim = (*victim + 1) % n
		if *victim == wc.id {
			*victim = (*victim + 1) % n
		}
		if t, ok := p.workers[*victim].deque.Steal(); ok {
			p.metrics.steals.Add(1)
			return t, true
		}
	}
	p.metrics.stealFailures.Add(1)
	return nil, false
}

// dispatch runs the fork/join scheduling loop of spec §4.6: cancellation
// check, Execute, bypass chaining, and continuation accounting on the last
// decrementer of a parent's ref count.
func (p *Pool) dispatch(wc *WorkerContext, t Task, ctx context.Context) {
	for t != nil {
		node, ok := t.(forkJoinNode)
		if !ok {
			p.logger.Error().Msg("task does not embed TaskBase; dropping")
			return
		}
		base := node.base()

		if base.IsCancelled() {
			p.metrics.tasksCancelled.Add(1)
			t = p.nextFromContinuation(base.continuation)
			continue
		}

		wc.current = base
		base.recyclable = false
		tc := newTaskContext(ctx, wc)
		if fr, ok := t.(*Frame); ok {
			tc.frame = fr
		}

		bypass, err := p.executeSafely(wc, t, tc)
		wc.current = nil
		p.metrics.tasksExecuted.Add(1)
		if err != nil {
			p.logger.Warn().Int("worker", wc.id).Err(err).Msg("task returned an error")
			base.SetErr(err)
			if base.continuation != nil {
				base.continuation.SetErr(err)
			}
			if p.onError != nil {
				p.onError(wc.id, t, err)
			}
		}

		switch {
		case !base.recyclable && base.RefCount() == 0:
			c := base.continuation
			if bypass != nil {
				t = bypass
				continue
			}
			t = p.nextFromContinuation(c)
		case bypass != nil:
			t = bypass
		default:
			// Suspended with no bypass: if the frame called Yield during this
			// resumption, requeue it now. By this point base.recyclable and
			// base.RefCount() have already been read for this iteration, so
			// pushing the frame back onto a deque here — where a peer can
			// immediately steal and redispatch it — races with nothing.
			if fr, ok := t.(*Frame); ok && fr.consumeYield() {
				_ = p.Spawn(tc, fr)
			}
			return
		}
	}
}

func (p *Pool) nextFromContinuation(c *TaskBase) Task {
	if c == nil {
		return nil
	}
	if c.DecrementRefCount() <= 0 {
		return c.self
	}
	return nil
}

func (p *Pool) executeSafely(wc *WorkerContext, t Task, tc *TaskContext) (bypass Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.tasksPanicked.Add(1)
			err = fmt.Errorf("taskpool: task panicked: %v", r)
			if p.onPanic != nil {
				p.onPanic(wc.id, t, r)
			}
		}
	}()
	return t.Execute(tc)
}
