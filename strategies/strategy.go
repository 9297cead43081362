package strategies

import "github.com/go-foundations/taskpool"

// SeedStrategy selects how Seed lays a batch of items across a pool's
// workers before the parallel region starts.
type SeedStrategy int

const (
	SeedRoundRobin SeedStrategy = iota
	SeedChunked
)

// Name returns a human-readable label for the strategy.
func (s SeedStrategy) Name() string {
	switch s {
	case SeedRoundRobin:
		return "Round Robin"
	case SeedChunked:
		return "Chunked"
	default:
		return "Unknown"
	}
}

// Seed dispatches to RoundRobin or Chunked by strategy, the factory-style
// entry point batch callers use when the distribution mode is a runtime
// choice rather than a compile-time one.
func Seed[T any](pool *taskpool.Pool, items []T, build TaskFunc[T], strategy SeedStrategy) error {
	switch strategy {
	case SeedChunked:
		return Chunked(pool, items, build)
	default:
		return RoundRobin(pool, items, build)
	}
}
