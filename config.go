package taskpool

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Config holds tunables for a Pool. Zero values are replaced by DefaultConfig
// defaults in NewPool, matching the teacher pool's permissive construction.
type Config struct {
	// NumWorkers is the number of worker goroutines. Worker 0 is the
	// goroutine that calls Run; NumWorkers-1 additional goroutines are
	// spawned internally.
	NumWorkers int

	// DequeCapacity is the power-of-two capacity of each worker's deque.
	// Spawns beyond capacity fail fatally per spec (ErrDequeOverflow).
	DequeCapacity int

	// StealAttemptsBeforePark is how many consecutive empty steal rounds
	// (across all peers) a worker tolerates before parking on its
	// auto-reset event.
	StealAttemptsBeforePark int

	// IOPollTimeout bounds how long the I/O reactor blocks in PollIO
	// between checks of its stop signal, so a pool with no pending fds
	// still notices shutdown promptly.
	IOPollTimeout time.Duration

	// IOFastPathRetries bounds the number of consecutive inline re-reads
	// read_async performs on the calling task before registering with the
	// kernel poller (spec §4.8's fork/join fast path).
	IOFastPathRetries int

	// Logger receives structured lifecycle events. The zero value is
	// zerolog.Nop(), matching the teacher's "observability is opt-in" stance.
	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults, mirroring workerpool.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		NumWorkers:              max(1, runtime.GOMAXPROCS(0)),
		DequeCapacity:           4096,
		StealAttemptsBeforePark: 32,
		IOPollTimeout:           20 * time.Millisecond,
		IOFastPathRetries:       32,
		Logger:                  zerolog.Nop(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.NumWorkers <= 0 {
		c.NumWorkers = d.NumWorkers
	}
	if c.DequeCapacity <= 0 {
		c.DequeCapacity = d.DequeCapacity
	}
	if !isPowerOfTwo(c.DequeCapacity) {
		c.DequeCapacity = nextPowerOfTwo(c.DequeCapacity)
	}
	if c.StealAttemptsBeforePark <= 0 {
		c.StealAttemptsBeforePark = d.StealAttemptsBeforePark
	}
	if c.IOPollTimeout <= 0 {
		c.IOPollTimeout = d.IOPollTimeout
	}
	if c.IOFastPathRetries <= 0 {
		c.IOFastPathRetries = d.IOFastPathRetries
	}
}

// Option configures a Pool at construction time, the functional-options
// idiom eventloop.Loop uses throughout options.go.
type Option func(*Config)

// WithNumWorkers sets the worker count.
func WithNumWorkers(n int) Option {
	return func(c *Config) { c.NumWorkers = n }
}

// WithDequeCapacity sets the per-worker deque capacity (rounded up to a power of two).
func WithDequeCapacity(n int) Option {
	return func(c *Config) { c.DequeCapacity = n }
}

// WithStealAttemptsBeforePark sets how many empty steal rounds precede parking.
func WithStealAttemptsBeforePark(n int) Option {
	return func(c *Config) { c.StealAttemptsBeforePark = n }
}

// WithIOPollTimeout bounds how long the reactor blocks per poll cycle.
func WithIOPollTimeout(d time.Duration) Option {
	return func(c *Config) { c.IOPollTimeout = d }
}

// WithIOFastPathRetries sets the inline-retry budget for read_async/write_async.
func WithIOFastPathRetries(n int) Option {
	return func(c *Config) { c.IOFastPathRetries = n }
}

// WithLogger installs a structured logger for pool lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
