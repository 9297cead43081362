package taskpool

import "sync/atomic"

// errBox holds the first error recorded against a TaskBase, swapped in with
// a single CAS so concurrent children sharing a continuation can post to it
// without a mutex.
type errBox struct{ err error }

// Task is a fork/join unit of work (spec §3, "Task handle (fork/join
// variant)"). Execute runs one step; returning a non-nil bypass task tells
// the scheduler to run it next, inline, on the same worker, skipping the
// deque entirely — the latency optimisation recursive decomposition needs.
type Task interface {
	Execute(ctx *TaskContext) (bypass Task, err error)
}

// forkJoinNode is the internal interface every Task must satisfy via an
// embedded TaskBase, giving the scheduler access to ref-counting and
// continuation bookkeeping without a type switch per concrete task type.
type forkJoinNode interface {
	Task
	base() *TaskBase
}

// CancellationToken is a shared, subtree-wide cancellation flag (spec §4.6).
// Checked at the top of each dispatch; cancelled tasks skip Execute, but
// continuation accounting still runs so the join completes.
type CancellationToken struct {
	cancelled atomic.Bool
}

// NewCancellationToken returns a fresh, unset token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel marks the token (and every task sharing it) cancelled.
func (c *CancellationToken) Cancel() {
	if c != nil {
		c.cancelled.Store(true)
	}
}

// IsCancelled reports whether Cancel has been called.
func (c *CancellationToken) IsCancelled() bool {
	return c != nil && c.cancelled.Load()
}

// TaskBase carries the reference count, continuation link, and
// cancellation/recycle bits every fork/join task needs (spec §3, "Task
// handle (fork/join variant)"). Concrete task types embed it by value:
//
//	type FibTask struct {
//	    taskpool.TaskBase
//	    n   int
//	    sum *int64
//	}
//
// embedding, rather than the original's placement-new-on-proxy trick,
// is how Go gives the allocator access to the parent's identity without a
// second constructor argument (spec §9's own recommendation).
type TaskBase struct {
	continuation *TaskBase
	self         Task // set by Bind; lets the scheduler recover the concrete task from a continuation's *TaskBase
	refCount     atomic.Int32
	cancel       *CancellationToken
	recyclable   bool
	errVal       atomic.Pointer[errBox]
}

func (t *TaskBase) base() *TaskBase { return t }

// NewChild returns a TaskBase whose continuation is parent: parent is
// recorded as the new task's parent for joining purposes. The caller must
// have already reserved a ref-count slot on parent (parent.SetRefCount or
// parent.IncrementRefCount) before spawning the child.
func NewChild(parent *TaskBase) TaskBase {
	return TaskBase{continuation: parent, cancel: parent.cancel}
}

// NewContinuation returns a TaskBase that steals parent's continuation:
// the new task is inserted between parent and parent's former continuation,
// becoming parent's parent for joining purposes. parent's own continuation
// link is cleared as a side effect, matching allocate_continuation's
// "transfer and clear" semantics in spec §3.
func NewContinuation(parent *TaskBase) TaskBase {
	c := parent.continuation
	parent.continuation = nil
	return TaskBase{continuation: c, cancel: parent.cancel}
}

// SetRefCount sets the number of in-flight children that must finish before
// this task runs as their continuation. The scheduler adds nothing for the
// task's own execution: a task completes only if its count is zero once
// Execute returns.
func (t *TaskBase) SetRefCount(n int32) {
	t.refCount.Store(n)
}

// IncrementRefCount bumps the ref count by one (e.g. for a late-arriving child).
func (t *TaskBase) IncrementRefCount() int32 {
	return t.refCount.Add(1)
}

// DecrementRefCount decrements the ref count and returns the new value.
func (t *TaskBase) DecrementRefCount() int32 {
	return t.refCount.Add(-1)
}

// RefCount returns the current ref count.
func (t *TaskBase) RefCount() int32 {
	return t.refCount.Load()
}

// Continuation returns the task to run once this one's ref count reaches zero.
func (t *TaskBase) Continuation() *TaskBase {
	return t.continuation
}

// SetCancellationToken attaches a shared cancellation token to this subtree.
func (t *TaskBase) SetCancellationToken(tok *CancellationToken) {
	t.cancel = tok
}

// CancellationToken returns the token shared with this task's siblings, if any.
func (t *TaskBase) CancellationToken() *CancellationToken {
	return t.cancel
}

// IsCancelled reports whether this task's subtree has been cancelled.
func (t *TaskBase) IsCancelled() bool {
	return t.cancel.IsCancelled()
}

// SetErr records err against this task, first-error-wins if called more
// than once (e.g. by several children posting to a shared continuation).
// A nil err is a no-op.
func (t *TaskBase) SetErr(err error) {
	if err == nil {
		return
	}
	t.errVal.CompareAndSwap(nil, &errBox{err: err})
}

// Err returns the first error recorded via SetErr, or nil if none was.
// Meaningful to read once RefCount() has reached zero (i.e. after join).
func (t *TaskBase) Err() error {
	if b := t.errVal.Load(); b != nil {
		return b.err
	}
	return nil
}

// Recycle marks the task as reusable: the scheduler will not delete it
// after Execute returns, even with a zero ref count. Call from within
// Execute, mirroring the original's protected recycle().
func (t *TaskBase) Recycle() {
	t.recyclable = true
}

// Bind completes a task's construction by recording its own concrete value
// on its embedded TaskBase. Every concrete task must call Bind once, right
// after construction, before being returned as a continuation/bypass or
// passed to Spawn/SpawnOn/Submit:
//
//	t := taskpool.Bind(&FibTask{TaskBase: taskpool.NewChild(&parent.TaskBase), n: n, sum: sum})
//
// This is the Go-native replacement for the original's placement-new-on-proxy
// trick (spec §9): the scheduler needs to recover a continuation's concrete
// Task from nothing but its *TaskBase pointer once the continuation's ref
// count reaches zero, and Bind is the one place that link is established.
func Bind[T forkJoinNode](t T) T {
	t.base().self = t
	return t
}

// RecycleAsChildOf reuses this task object as a new child of parent instead
// of constructing a fresh one (spec §4.6, recycle_as_child_of).
func (t *TaskBase) RecycleAsChildOf(parent *TaskBase) {
	t.continuation = parent
	t.cancel = parent.cancel
	t.recyclable = true
	t.errVal.Store(nil)
}
