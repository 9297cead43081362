//go:build linux || darwin

package taskpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"
)

type IOTestSuite struct {
	suite.Suite
}

func TestIOTestSuite(t *testing.T) {
	suite.Run(t, new(IOTestSuite))
}

func nonblockingPipe(ts *IOTestSuite) (r, w int) {
	fds := make([]int, 2)
	ts.Require().NoError(unix.Pipe(fds))
	ts.Require().NoError(unix.SetNonblock(fds[0], true))
	ts.Require().NoError(unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

// TestReadAsyncStarvedThenSatisfied matches spec.md §8's "read on an empty
// pipe suspends without blocking a worker, then resumes once data arrives"
// scenario, exercised via the fork/join-callback variant.
func (ts *IOTestSuite) TestReadAsyncStarvedThenSatisfied() {
	p := NewPool(WithNumWorkers(2), WithIOFastPathRetries(4))
	r, w := nonblockingPipe(ts)
	defer unix.Close(w)

	result := make(chan []byte, 1)
	task := Bind(&ioReadStarterTask{pool: p, fd: r, out: result})
	ts.Require().NoError(p.Submit(task))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // give ReadAsync's fast path time to exhaust and register
	_, werr := unix.Write(w, []byte("hello"))
	ts.Require().NoError(werr)

	select {
	case got := <-result:
		ts.Equal("hello", string(got))
	case <-time.After(3 * time.Second):
		ts.Fail("read never completed after data became available")
	}

	p.Shutdown()
	<-runDone
	unix.Close(r)
}

type ioReadStarterTask struct {
	TaskBase
	pool *Pool
	fd   int
	out  chan<- []byte
}

func (t *ioReadStarterTask) Execute(tc *TaskContext) (Task, error) {
	buf := make([]byte, 64)
	t.pool.ReadAsync(tc, t.fd, buf, func(n int, err error) {
		t.out <- buf[:n]
	})
	return nil, nil
}

// TestAwaitReadStarvedThenSatisfied is the coroutine-variant counterpart,
// driving a Frame through AwaitRead instead of a callback.
func (ts *IOTestSuite) TestAwaitReadStarvedThenSatisfied() {
	p := NewPool(WithNumWorkers(2))
	r, w := nonblockingPipe(ts)
	defer unix.Close(w)

	result := make(chan []byte, 1)
	buf := make([]byte, 64)

	var step StepFunc
	step = func(tc *TaskContext, f *Frame) (bool, any, error) {
		n, err, ready := p.AwaitRead(tc, r, buf)
		if !ready {
			return false, nil, nil
		}
		result <- append([]byte(nil), buf[:n]...)
		return true, n, err
	}
	frame := NewFrame(step, true)
	ts.Require().NoError(p.Submit(frame))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	_, werr := unix.Write(w, []byte("world"))
	ts.Require().NoError(werr)

	select {
	case got := <-result:
		ts.Equal("world", string(got))
	case <-time.After(3 * time.Second):
		ts.Fail("frame never resumed after data became available")
	}

	p.Shutdown()
	<-runDone
	unix.Close(r)
}
