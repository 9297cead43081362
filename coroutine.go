package taskpool

import "sync"

// StepFunc is a coroutine's resume entry point (spec §3, "Task handle
// (coroutine variant)"). It runs one resumption: if the coroutine has more
// to do, it returns done=false (having recorded whatever local state it
// needs in the closure or in f's own fields — Go has no compiler-generated
// resumable frame, so the step function's own state capture IS the frame,
// exactly as spec §9 notes for any language without that language feature).
// Returning done=true completes the coroutine with (value, err).
type StepFunc func(tc *TaskContext, f *Frame) (done bool, value any, err error)

// Promise carries a coroutine's outcome: completion flag, result, and the
// parent frame awaiting it (spec §3). It is the continuation-chaining link
// between a coroutine and whoever co_await-ed it.
type Promise struct {
	mu     sync.Mutex
	done   bool
	value  any
	err    error
	parent *Frame
}

// Frame is a resumable, stackless coroutine task (C7). It embeds TaskBase
// so the same Pool.dispatch loop that runs fork/join tasks also drives
// coroutine resumption: "suspend" is simply Recycle() (don't discard me)
// plus declining to return a bypass, and "resume" is an ordinary Spawn.
type Frame struct {
	TaskBase
	step        StepFunc
	promise     *Promise
	independent bool
	yielded     bool
}

// NewFrame creates a coroutine frame around step. independent marks a
// fire-and-forget frame the scheduler releases on completion, as opposed to
// one an awaiter (via Await) owns and releases after observing Done.
func NewFrame(step StepFunc, independent bool) *Frame {
	return Bind(&Frame{step: step, promise: &Promise{}, independent: independent})
}

// Done reports whether the frame has completed.
func (f *Frame) Done() bool {
	f.promise.mu.Lock()
	defer f.promise.mu.Unlock()
	return f.promise.done
}

// Result returns the frame's outcome. Valid only once Done() is true.
func (f *Frame) Result() (any, error) {
	f.promise.mu.Lock()
	defer f.promise.mu.Unlock()
	return f.promise.value, f.promise.err
}

// Execute resumes the frame by calling its StepFunc once. Satisfies Task,
// letting a Pool schedule frames exactly like fork/join tasks.
func (f *Frame) Execute(tc *TaskContext) (Task, error) {
	done, value, err := f.step(tc, f)
	if !done {
		// Suspended: the scheduler must not discard this frame. Whoever
		// resumes it (an I/O readiness callback, a resolved Promise, or
		// Yield's self-requeue) does so with an ordinary Spawn/SpawnOn.
		f.Recycle()
		return nil, nil
	}

	f.promise.mu.Lock()
	f.promise.done = true
	f.promise.value = value
	f.promise.err = err
	parent := f.promise.parent
	f.promise.parent = nil
	f.promise.mu.Unlock()

	if parent != nil {
		_ = tc.Pool().Spawn(tc, parent)
	}
	if f.independent {
		tc.wc.releaseFrame(f)
	}
	return nil, err
}

// Await checks whether awaitee has already completed. If so it returns the
// result inline (ready=true) and the caller's step function proceeds
// without suspending, per spec §4.7. Otherwise it registers the calling
// frame (recovered from tc) as awaitee's parent and returns ready=false: the
// caller's step function must itself return done=false immediately, letting
// Execute suspend it. When awaitee later completes, its Execute spawns the
// calling frame back onto the pool automatically.
func Await(tc *TaskContext, awaitee *Frame) (value any, err error, ready bool) {
	awaitee.promise.mu.Lock()
	defer awaitee.promise.mu.Unlock()
	if awaitee.promise.done {
		return awaitee.promise.value, awaitee.promise.err, true
	}
	awaitee.promise.parent = tc.frame
	return nil, nil, false
}

// Yield marks the calling frame for cooperative re-scheduling (spec §4.7).
// The caller's step function must return done=false right after calling
// Yield. The actual re-spawn happens in Pool.dispatch once Execute has fully
// returned and the scheduler is done reading the frame's TaskBase for this
// resumption — spawning here, while step is still on the call stack inside
// Execute, would let a peer worker steal and re-dispatch the same frame
// before this call unwinds.
func Yield(tc *TaskContext) {
	f := tc.frame
	if f == nil {
		return
	}
	f.yielded = true
}

// consumeYield reports whether Yield was called during the frame's last
// resumption, clearing the flag. Safe to call only from the single goroutine
// that just ran Execute on f, before f is handed to any other worker.
func (f *Frame) consumeYield() bool {
	y := f.yielded
	f.yielded = false
	return y
}
