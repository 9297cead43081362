package taskpool

import "errors"

// Static errors returned by the pool and its collaborators.
var (
	// ErrAlreadyRunning is returned by Run when the pool is already running.
	ErrAlreadyRunning = errors.New("taskpool: pool is already running")

	// ErrNotRunning reports a pool that is not running. No function in this
	// package returns it: Submit, Spawn and SpawnOn accept tasks before Run.
	ErrNotRunning = errors.New("taskpool: pool is not running")

	// ErrReentrantJoin is returned when Run is called with a context derived
	// from a TaskContext, i.e. from inside a running task.
	ErrReentrantJoin = errors.New("taskpool: Run cannot be called from within the pool")

	// ErrDequeOverflow is returned when a worker's deque is at capacity.
	// Per spec, fan-out exceeding deque capacity is fatal: callers must throttle.
	ErrDequeOverflow = errors.New("taskpool: deque overflow, caller must throttle fan-out")

	// ErrInvalidWorkerID is returned by SpawnOn for an out-of-range worker id.
	ErrInvalidWorkerID = errors.New("taskpool: worker id out of range")

	// ErrPollerClosed is returned by the I/O bridge once the pool has shut down.
	ErrPollerClosed = errors.New("taskpool: io poller is closed")

	// ErrFDAlreadyRegistered is returned by RegisterFD for a fd already tracked.
	ErrFDAlreadyRegistered = errors.New("taskpool: fd already registered")

	// ErrFDNotRegistered is returned by UnregisterFD/ModifyFD for an untracked fd.
	ErrFDNotRegistered = errors.New("taskpool: fd not registered")

	// ErrFDOutOfRange is returned when a fd exceeds the poller's addressable range.
	ErrFDOutOfRange = errors.New("taskpool: fd out of range")

	// ErrUnsupportedPlatform is returned by the poller constructor on platforms
	// without an epoll/kqueue equivalent wired in.
	ErrUnsupportedPlatform = errors.New("taskpool: no readiness poller for this platform")

	// ErrNoCallingFrame is returned by AwaitRead/AwaitWrite when called with a
	// TaskContext that isn't currently resuming a coroutine Frame.
	ErrNoCallingFrame = errors.New("taskpool: AwaitRead/AwaitWrite called outside a coroutine frame")
)
