package taskpool

import "context"

// WorkerContext is per-worker state (spec §4.3): identity, current task,
// and a bounded free list of coroutine frames (the Go stand-in for C5's pool
// of reusable machine stacks — a goroutine-based worker has no stack to
// recycle itself). Independent frames are put on the list when they
// complete; NewFrame always allocates a fresh frame and does not draw from
// it. There is no continuation scratch slot: NewChild/NewContinuation take
// the parent TaskBase explicitly.
//
// A WorkerContext is only ever touched by the single goroutine that owns
// it; it is threaded explicitly through the dispatch loop and into
// TaskContext rather than published via a package-level thread-local, per
// spec §9's own recommendation for languages that discourage TLS.
type WorkerContext struct {
	id        int
	pool      *Pool
	deque     *Deque[Task]
	event     *autoResetEvent
	framePool []*Frame

	current *TaskBase
}

const framePoolLimit = 64

func newWorkerContext(id int, pool *Pool, deque *Deque[Task], event *autoResetEvent) *WorkerContext {
	return &WorkerContext{id: id, pool: pool, deque: deque, event: event}
}

// acquireFrame pops a recycled *Frame if one is free, else allocates.
func (wc *WorkerContext) acquireFrame() *Frame {
	n := len(wc.framePool)
	if n == 0 {
		return &Frame{}
	}
	f := wc.framePool[n-1]
	wc.framePool = wc.framePool[:n-1]
	*f = Frame{}
	return f
}

// releaseFrame returns a finished *Frame to the free list, bounded so the
// pool can't grow without limit across a long-running worker's lifetime.
func (wc *WorkerContext) releaseFrame(f *Frame) {
	if len(wc.framePool) >= framePoolLimit {
		return
	}
	wc.framePool = append(wc.framePool, f)
}

// taskContextKey is the context.Context key TaskContext stashes itself
// under, letting deeply nested helper functions recover the calling task's
// worker identity without threading an extra parameter everywhere.
type taskContextKey struct{}

// TaskContext is what a Task's Execute method receives: a context.Context
// (for cancellation/deadlines, the idiom the teacher pool already uses for
// WorkerTimeout) plus the identity of the worker currently running it.
type TaskContext struct {
	context.Context
	workerID int
	pool     *Pool
	wc       *WorkerContext
	frame    *Frame // set only while resuming a coroutine frame; nil for plain fork/join tasks
}

func newTaskContext(parent context.Context, wc *WorkerContext) *TaskContext {
	tc := &TaskContext{workerID: wc.id, pool: wc.pool, wc: wc}
	tc.Context = context.WithValue(parent, taskContextKey{}, tc)
	return tc
}

// WorkerID returns the id (0..N-1) of the worker currently executing the task.
func (tc *TaskContext) WorkerID() int { return tc.workerID }

// Pool returns the owning Pool, so a task can Spawn children or query metrics.
func (tc *TaskContext) Pool() *Pool { return tc.pool }

// WorkerIDFromContext recovers the running worker's id from a context.Context
// derived from a TaskContext, the explicit-context-passing analogue of
// spec §6's current_worker_id query.
func WorkerIDFromContext(ctx context.Context) (int, bool) {
	tc, ok := ctx.Value(taskContextKey{}).(*TaskContext)
	if !ok {
		return 0, false
	}
	return tc.workerID, true
}

// taskContextFrom recovers the *TaskContext itself, used internally by Run
// to reject a call made from inside a running task.
func taskContextFrom(ctx context.Context) (*TaskContext, bool) {
	tc, ok := ctx.Value(taskContextKey{}).(*TaskContext)
	return tc, ok
}
