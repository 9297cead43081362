// Package strategies provides batch-seeding helpers that front-load a
// taskpool.Pool's per-worker deques with an initial wave of tasks before a
// parallel region starts. They are the batch-submission descendants of the
// teacher workerpool's job-distribution strategies: RoundRobin and Chunked
// survive because seeding order still matters once work-stealing takes
// over, but WorkStealing and PriorityBased do not, since the pool now does
// stealing natively and priority classes are out of scope.
package strategies

import "github.com/go-foundations/taskpool"

// TaskFunc builds the task to run for one batch item, given the worker id
// it is about to be seeded onto and its index in the batch.
type TaskFunc[T any] func(workerID int, index int, item T) taskpool.Task

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
