package strategies

import "github.com/go-foundations/taskpool"

// RoundRobin seeds pool with one task per item, distributing items one at a
// time across the pool's workers in round-robin order. It is the
// batch-seeding descendant of the teacher's RoundRobinStrategy: instead of
// draining a per-worker channel at runtime, it front-loads every worker's
// deque once, before Run starts the parallel region, and lets work-stealing
// absorb whatever imbalance is left once workers start consuming unevenly
// sized items.
func RoundRobin[T any](pool *taskpool.Pool, items []T, build TaskFunc[T]) error {
	n := pool.NumWorkers()
	for i, item := range items {
		workerID := i % n
		if err := pool.SpawnOn(workerID, build(workerID, i, item)); err != nil {
			return err
		}
	}
	return nil
}
