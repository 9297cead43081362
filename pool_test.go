package taskpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PoolTestSuite struct {
	suite.Suite
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (ts *PoolTestSuite) TestNewPoolDefaults() {
	p := NewPool()
	ts.Greater(p.NumWorkers(), 0)
	ts.NotNil(p.Metrics())
}

func (ts *PoolTestSuite) TestSpawnOnInvalidWorkerID() {
	p := NewPool(WithNumWorkers(2))
	err := p.SpawnOn(5, Bind(&stubTask{}))
	ts.ErrorIs(err, ErrInvalidWorkerID)
}

func (ts *PoolTestSuite) TestSubmitBeforeRunThenRunExecutesIt() {
	p := NewPool(WithNumWorkers(2))

	var ran atomic.Bool
	t := Bind(&callbackTask{fn: func() { ran.Store(true) }})
	ts.NoError(p.Submit(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	ts.Eventually(func() bool { return ran.Load() }, 500*time.Millisecond, time.Millisecond)
	p.Shutdown()
	<-runDone
}

func (ts *PoolTestSuite) TestReentrantRunRejected() {
	p := NewPool(WithNumWorkers(2))

	errCh := make(chan error, 1)
	probe := Bind(&probeTask{pool: p, out: errCh})
	ts.NoError(p.Submit(probe))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case err := <-errCh:
		ts.ErrorIs(err, ErrReentrantJoin)
	case <-time.After(time.Second):
		ts.Fail("probe task never ran")
	}
	p.Shutdown()
	<-runDone
}

type probeTask struct {
	TaskBase
	pool *Pool
	out  chan<- error
}

func (p *probeTask) Execute(tc *TaskContext) (Task, error) {
	p.out <- p.pool.Run(tc)
	return nil, nil
}

// testFibContinuation/testFibTask are a small recursive Fibonacci workload
// (cutoff-style fork/join with a serial floor) that exercises spec.md §8
// scenario 1 end to end against the scheduler package-internally.
type testFibContinuation struct {
	TaskBase
	sum  *int64
	x, y int64
}

func (c *testFibContinuation) Execute(tc *TaskContext) (Task, error) {
	*c.sum = c.x + c.y
	return nil, nil
}

type testFibTask struct {
	TaskBase
	n   int
	sum *int64
}

func newTestFibTask(base TaskBase, n int, sum *int64) *testFibTask {
	return Bind(&testFibTask{TaskBase: base, n: n, sum: sum})
}

func serialTestFib(n int) int64 {
	if n < 2 {
		return int64(n)
	}
	return serialTestFib(n-1) + serialTestFib(n-2)
}

const testFibCutoff = 10

func (t *testFibTask) Execute(tc *TaskContext) (Task, error) {
	if t.n < testFibCutoff {
		*t.sum = serialTestFib(t.n)
		return nil, nil
	}
	c := Bind(&testFibContinuation{TaskBase: NewContinuation(&t.TaskBase), sum: t.sum})
	a := newTestFibTask(NewChild(&c.TaskBase), t.n-2, &c.x)

	t.n--
	t.sum = &c.y
	t.RecycleAsChildOf(&c.TaskBase)
	c.SetRefCount(2)

	if err := tc.Pool().Spawn(tc, a); err != nil {
		return nil, err
	}
	return t, nil
}

func (ts *PoolTestSuite) TestFibForkJoinMatchesSerial() {
	const n = 24
	p := NewPool(WithNumWorkers(8))

	done := make(chan struct{})
	finalize := Bind(&callbackTask{})
	finalize.fn = func() { close(done) }
	finalize.SetRefCount(1)

	var sum int64
	root := newTestFibTask(NewChild(&finalize.TaskBase), n, &sum)
	ts.NoError(p.Submit(root))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		ts.Fail("fib computation never completed")
	}
	p.Shutdown()
	<-runDone

	ts.Equal(serialTestFib(n), sum)
}

// TestFanOutFanIn spawns many independent leaf tasks across all workers and
// confirms every one runs exactly once, the fan-out/fan-in scenario from
// spec.md §8.
func (ts *PoolTestSuite) TestFanOutFanIn() {
	const numTasks = 1000
	p := NewPool(WithNumWorkers(8))

	var completed atomic.Int64
	finalize := Bind(&callbackTask{})
	finalize.SetRefCount(int32(numTasks))
	done := make(chan struct{})

	for i := 0; i < numTasks; i++ {
		leaf := Bind(&callbackTask{TaskBase: NewChild(&finalize.TaskBase)})
		leaf.fn = func() { completed.Add(1) }
		ts.NoError(p.SpawnOn(i%p.NumWorkers(), leaf))
	}
	finalize.fn = func() { close(done) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		ts.Fail("fan-out/fan-in never completed")
	}
	p.Shutdown()
	<-runDone

	ts.EqualValues(numTasks, completed.Load())
}
