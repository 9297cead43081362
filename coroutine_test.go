package taskpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CoroutineTestSuite struct {
	suite.Suite
}

func TestCoroutineTestSuite(t *testing.T) {
	suite.Run(t, new(CoroutineTestSuite))
}

// TestYieldResumePreservesState drives a frame that yields a fixed number
// of times, incrementing a counter captured in its closure each resume,
// verifying state survives suspend/resume exactly as a real stack would.
func (ts *CoroutineTestSuite) TestYieldResumePreservesState() {
	p := NewPool(WithNumWorkers(2))

	const resumes = 5
	count := 0
	done := make(chan struct{})

	var step StepFunc
	step = func(tc *TaskContext, f *Frame) (bool, any, error) {
		count++
		if count < resumes {
			Yield(tc)
			return false, nil, nil
		}
		close(done)
		return true, count, nil
	}
	frame := NewFrame(step, true)
	ts.NoError(p.Submit(frame))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		ts.Fail("frame never completed its resumes")
	}
	p.Shutdown()
	<-runDone

	ts.Equal(resumes, count)
}

// TestAwaitChain matches the "A awaits B awaits C" scenario from spec.md
// §8: completion propagates up the chain in order, and each frame's value
// is only observed once its awaitee is actually done.
func (ts *CoroutineTestSuite) TestAwaitChain() {
	p := NewPool(WithNumWorkers(2))

	var frameC, frameB *Frame
	resultA := make(chan any, 1)
	done := make(chan struct{})

	var stepC StepFunc
	stepC = func(tc *TaskContext, f *Frame) (bool, any, error) {
		return true, "c-done", nil
	}
	frameC = NewFrame(stepC, false)

	var stepB StepFunc
	stepB = func(tc *TaskContext, f *Frame) (bool, any, error) {
		v, err, ready := Await(tc, frameC)
		if !ready {
			return false, nil, nil
		}
		return true, "b-saw-" + v.(string), err
	}
	frameB = NewFrame(stepB, false)

	var stepA StepFunc
	stepA = func(tc *TaskContext, f *Frame) (bool, any, error) {
		v, err, ready := Await(tc, frameB)
		if !ready {
			return false, nil, nil
		}
		resultA <- v
		close(done)
		return true, v, err
	}
	frameA := NewFrame(stepA, true)

	ts.NoError(p.Submit(frameA))
	ts.NoError(p.SpawnOn(0, frameB))
	ts.NoError(p.SpawnOn(0, frameC))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		ts.Fail("await chain never completed")
	}
	p.Shutdown()
	<-runDone

	ts.Equal("b-saw-c-done", <-resultA)
}
