package taskpool

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type stubTask struct {
	TaskBase
	ran bool
}

func (s *stubTask) Execute(tc *TaskContext) (Task, error) {
	s.ran = true
	return nil, nil
}

type TaskTestSuite struct {
	suite.Suite
}

func TestTaskTestSuite(t *testing.T) {
	suite.Run(t, new(TaskTestSuite))
}

func (ts *TaskTestSuite) TestBindSetsSelf() {
	s := Bind(&stubTask{})
	ts.Same(s, s.base().self)
}

func (ts *TaskTestSuite) TestNewChildInheritsCancellationToken() {
	tok := NewCancellationToken()
	parent := Bind(&stubTask{})
	parent.SetCancellationToken(tok)

	child := Bind(&stubTask{TaskBase: NewChild(&parent.TaskBase)})
	ts.Same(tok, child.CancellationToken())
	ts.False(child.IsCancelled())

	tok.Cancel()
	ts.True(child.IsCancelled())
}

func (ts *TaskTestSuite) TestNewContinuationStealsParentContinuation() {
	grandparent := Bind(&stubTask{})
	parent := Bind(&stubTask{TaskBase: NewChild(&grandparent.TaskBase)})
	ts.Same(&grandparent.TaskBase, parent.Continuation())

	cont := Bind(&stubTask{TaskBase: NewContinuation(&parent.TaskBase)})
	ts.Same(&grandparent.TaskBase, cont.Continuation())
	ts.Nil(parent.Continuation(), "NewContinuation must clear the parent's own continuation link")
}

func (ts *TaskTestSuite) TestRefCounting() {
	base := Bind(&stubTask{})
	base.SetRefCount(2)
	ts.EqualValues(2, base.RefCount())
	ts.EqualValues(1, base.DecrementRefCount())
	ts.EqualValues(2, base.IncrementRefCount())
	ts.EqualValues(2, base.RefCount())
}

func (ts *TaskTestSuite) TestRecycleAsChildOf() {
	parent := Bind(&stubTask{})
	child := Bind(&stubTask{})
	child.RecycleAsChildOf(&parent.TaskBase)

	ts.Same(&parent.TaskBase, child.Continuation())
	ts.True(child.recyclable)
}

func (ts *TaskTestSuite) TestCancellationTokenNilSafe() {
	var tok *CancellationToken
	ts.False(tok.IsCancelled())
	tok.Cancel() // must not panic
}
