package strategies

import "github.com/go-foundations/taskpool"

// Chunked seeds pool with contiguous runs of items per worker. It is the
// batch-seeding descendant of the teacher's ChunkedStrategy, preferred over
// RoundRobin when nearby items also share data locality (adjacent slice
// regions, adjacent file offsets): each worker's deque fills with one
// contiguous run instead of an interleaved one, so its initial LIFO pops
// stay within that run, processing it in reverse of the order it was laid out.
func Chunked[T any](pool *taskpool.Pool, items []T, build TaskFunc[T]) error {
	n := pool.NumWorkers()
	chunkSize := max(1, len(items)/n)
	remainder := len(items) % n

	start := 0
	for w := 0; w < n && start < len(items); w++ {
		end := start + chunkSize
		if w < remainder {
			end++
		}
		if end > len(items) {
			end = len(items)
		}
		for i := start; i < end; i++ {
			if err := pool.SpawnOn(w, build(w, i, items[i])); err != nil {
				return err
			}
		}
		start = end
	}
	return nil
}
