package taskpool

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ioBridge is the scheduler-facing half of C8 (spec §4.8): it owns the
// platform poller and a background reactor goroutine, and turns readiness
// callbacks into ordinary Spawn/SpawnOn calls so resumed work re-enters the
// same work-stealing dispatch loop as everything else.
type ioBridge struct {
	pool        *Pool
	poller      platformPoller
	pollTimeout time.Duration
	fastRetries int
	stopCh      chan struct{}
	doneCh      chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	initErr     error
}

func newIOBridge(pool *Pool, pollTimeout time.Duration, fastRetries int) *ioBridge {
	return &ioBridge{
		pool:        pool,
		poller:      newPlatformPoller(),
		pollTimeout: pollTimeout,
		fastRetries: fastRetries,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// start initializes the platform poller and launches the reactor goroutine.
// Called once per Pool.Run; a pool whose platform has no poller binding
// (poller_other.go) fails here with ErrUnsupportedPlatform rather than
// silently never delivering I/O readiness.
func (b *ioBridge) start() error {
	var err error
	b.startOnce.Do(func() {
		err = b.poller.Init()
		if err != nil {
			b.initErr = err
			close(b.doneCh)
			return
		}
		go b.reactorLoop()
	})
	if err != nil {
		return err
	}
	return b.initErr
}

// stop shuts the reactor down and releases the poller's fd.
func (b *ioBridge) stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		_ = b.poller.Close()
	})
}

func (b *ioBridge) reactorLoop() {
	defer close(b.doneCh)
	timeoutMs := int(b.pollTimeout / time.Millisecond)
	if timeoutMs <= 0 {
		timeoutMs = 1
	}
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		if _, err := b.poller.PollIO(timeoutMs); err != nil && err != ErrPollerClosed {
			b.pool.logger.Warn().Err(err).Msg("io poll error")
		}
	}
}

// registerOnce arms a one-shot readiness watch on fd: when it next becomes
// ready for any of events, onReady fires exactly once and the fd is
// unregistered, matching the reactor ownership model described in spec
// §4.8 (the poller does not hand back repeated notifications for a single
// logical wait).
func (b *ioBridge) registerOnce(fd int, events IOEvents, onReady func(IOEvents)) error {
	var fired sync.Once
	return b.poller.RegisterFD(fd, events, func(got IOEvents) {
		fired.Do(func() {
			_ = b.poller.UnregisterFD(fd)
			onReady(got)
		})
	})
}

// callbackTask adapts an arbitrary closure to Task, letting an I/O
// continuation re-enter the scheduler as an ordinary unit of work rather
// than running inline on the reactor goroutine.
type callbackTask struct {
	TaskBase
	fn func()
}

func newCallbackTask(fn func()) *callbackTask {
	return Bind(&callbackTask{fn: fn})
}

func (c *callbackTask) Execute(tc *TaskContext) (Task, error) {
	c.fn()
	return nil, nil
}

// ReadAsync is the fork/join-variant I/O primitive of spec §4.8: it first
// re-reads inline, up to IOFastPathRetries times, on the calling task's own
// stack — the common case of a descriptor that's already readable never
// touches the poller. Only once the budget is exhausted (repeated EAGAIN)
// does it register with the kernel and return control to the caller;
// callback fires later, on the worker tc names, as an ordinary spawned task.
func (b *ioBridge) ReadAsync(tc *TaskContext, fd int, buf []byte, callback func(n int, err error)) {
	for i := 0; i < b.fastRetries; i++ {
		n, err := unix.Read(fd, buf)
		if err != unix.EAGAIN && err != unix.EINTR {
			callback(n, normalizeIOErr(err))
			return
		}
	}

	workerID := tc.WorkerID()
	err := b.registerOnce(fd, EventRead, func(IOEvents) {
		n, err := unix.Read(fd, buf)
		task := newCallbackTask(func() { callback(n, normalizeIOErr(err)) })
		_ = b.pool.SpawnOn(workerID, task)
	})
	if err != nil {
		task := newCallbackTask(func() { callback(0, err) })
		_ = b.pool.SpawnOn(workerID, task)
	}
}

// WriteAsync mirrors ReadAsync for the write direction.
func (b *ioBridge) WriteAsync(tc *TaskContext, fd int, buf []byte, callback func(n int, err error)) {
	for i := 0; i < b.fastRetries; i++ {
		n, err := unix.Write(fd, buf)
		if err != unix.EAGAIN && err != unix.EINTR {
			callback(n, normalizeIOErr(err))
			return
		}
	}

	workerID := tc.WorkerID()
	err := b.registerOnce(fd, EventWrite, func(IOEvents) {
		n, err := unix.Write(fd, buf)
		task := newCallbackTask(func() { callback(n, normalizeIOErr(err)) })
		_ = b.pool.SpawnOn(workerID, task)
	})
	if err != nil {
		task := newCallbackTask(func() { callback(0, err) })
		_ = b.pool.SpawnOn(workerID, task)
	}
}

// AcceptAsync waits for a listening socket to have a pending connection,
// then accepts it on the calling worker.
func (b *ioBridge) AcceptAsync(tc *TaskContext, listenFD int, callback func(connFD int, err error)) {
	for i := 0; i < b.fastRetries; i++ {
		connFD, _, err := unix.Accept(listenFD)
		if err != unix.EAGAIN && err != unix.EINTR {
			callback(connFD, normalizeIOErr(err))
			return
		}
	}

	workerID := tc.WorkerID()
	err := b.registerOnce(listenFD, EventRead, func(IOEvents) {
		connFD, _, err := unix.Accept(listenFD)
		task := newCallbackTask(func() { callback(connFD, normalizeIOErr(err)) })
		_ = b.pool.SpawnOn(workerID, task)
	})
	if err != nil {
		task := newCallbackTask(func() { callback(-1, err) })
		_ = b.pool.SpawnOn(workerID, task)
	}
}

// ConnectAsync waits for a non-blocking Connect to resolve (fd becomes
// writable) and reports the outcome via getsockopt(SO_ERROR).
func (b *ioBridge) ConnectAsync(tc *TaskContext, fd int, callback func(err error)) {
	workerID := tc.WorkerID()
	err := b.registerOnce(fd, EventWrite, func(IOEvents) {
		soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		var result error
		if gerr != nil {
			result = gerr
		} else if soErr != 0 {
			result = unix.Errno(soErr)
		}
		task := newCallbackTask(func() { callback(result) })
		_ = b.pool.SpawnOn(workerID, task)
	})
	if err != nil {
		task := newCallbackTask(func() { callback(err) })
		_ = b.pool.SpawnOn(workerID, task)
	}
}

// AwaitRead is the coroutine-variant counterpart of ReadAsync (spec §4.7 x
// §4.8): it tries one non-blocking read; if data is ready it returns
// immediately with ready=true. Otherwise it registers fd and returns
// ready=false — the calling StepFunc must return done=false right after,
// exactly like Await/Yield. The frame is resumed (as a Spawn) once the fd
// is readable, with the result latched into the frame's own closure by the
// step function itself.
func (b *ioBridge) AwaitRead(tc *TaskContext, fd int, buf []byte) (n int, err error, ready bool) {
	var rerr error
	for {
		n, rerr = unix.Read(fd, buf)
		if rerr != unix.EINTR {
			break
		}
	}
	if rerr != unix.EAGAIN {
		return n, normalizeIOErr(rerr), true
	}

	f := tc.frame
	if f == nil {
		return 0, ErrNoCallingFrame, true
	}
	workerID := tc.WorkerID()
	regErr := b.registerOnce(fd, EventRead, func(IOEvents) {
		f.Recycle()
		_ = b.pool.SpawnOn(workerID, f)
	})
	if regErr != nil {
		return 0, regErr, true
	}
	return 0, nil, false
}

// AwaitWrite mirrors AwaitRead for the write direction.
func (b *ioBridge) AwaitWrite(tc *TaskContext, fd int, buf []byte) (n int, err error, ready bool) {
	var werr error
	for {
		n, werr = unix.Write(fd, buf)
		if werr != unix.EINTR {
			break
		}
	}
	if werr != unix.EAGAIN {
		return n, normalizeIOErr(werr), true
	}

	f := tc.frame
	if f == nil {
		return 0, ErrNoCallingFrame, true
	}
	workerID := tc.WorkerID()
	regErr := b.registerOnce(fd, EventWrite, func(IOEvents) {
		f.Recycle()
		_ = b.pool.SpawnOn(workerID, f)
	})
	if regErr != nil {
		return 0, regErr, true
	}
	return 0, nil, false
}

// ReadAsync is the fork/join-variant entry point a Task's Execute calls to
// read from fd without blocking the worker goroutine; see ioBridge.ReadAsync.
func (p *Pool) ReadAsync(tc *TaskContext, fd int, buf []byte, callback func(n int, err error)) {
	p.io.ReadAsync(tc, fd, buf, callback)
}

// WriteAsync is the fork/join-variant entry point for non-blocking writes.
func (p *Pool) WriteAsync(tc *TaskContext, fd int, buf []byte, callback func(n int, err error)) {
	p.io.WriteAsync(tc, fd, buf, callback)
}

// AcceptAsync is the fork/join-variant entry point for accepting on a
// non-blocking listening socket.
func (p *Pool) AcceptAsync(tc *TaskContext, listenFD int, callback func(connFD int, err error)) {
	p.io.AcceptAsync(tc, listenFD, callback)
}

// ConnectAsync is the fork/join-variant entry point for a non-blocking connect.
func (p *Pool) ConnectAsync(tc *TaskContext, fd int, callback func(err error)) {
	p.io.ConnectAsync(tc, fd, callback)
}

// AwaitRead is the coroutine-variant entry point a StepFunc calls from
// inside a Frame; see ioBridge.AwaitRead.
func (p *Pool) AwaitRead(tc *TaskContext, fd int, buf []byte) (n int, err error, ready bool) {
	return p.io.AwaitRead(tc, fd, buf)
}

// AwaitWrite is the coroutine-variant entry point for a non-blocking write.
func (p *Pool) AwaitWrite(tc *TaskContext, fd int, buf []byte) (n int, err error, ready bool) {
	return p.io.AwaitWrite(tc, fd, buf)
}

func normalizeIOErr(err error) error {
	if err == nil {
		return nil
	}
	return err
}
