package taskpool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds aggregate counters for a Pool, adapted from the teacher
// workerpool's Metrics type: RWMutex-guarded snapshot, atomic hot counters.
type Metrics struct {
	mu        sync.RWMutex
	startTime time.Time
	endTime   time.Time

	tasksSpawned   atomic.Int64
	tasksExecuted  atomic.Int64
	tasksCancelled atomic.Int64
	tasksPanicked  atomic.Int64
	steals         atomic.Int64
	stealFailures  atomic.Int64
	parkEvents     atomic.Int64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) markStart() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

func (m *Metrics) markEnd() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Snapshot is an immutable copy of the pool's counters at a point in time.
type Snapshot struct {
	TasksSpawned   int64
	TasksExecuted  int64
	TasksCancelled int64
	TasksPanicked  int64
	Steals         int64
	StealFailures  int64
	ParkEvents     int64
	StartTime      time.Time
	EndTime        time.Time
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		TasksSpawned:   m.tasksSpawned.Load(),
		TasksExecuted:  m.tasksExecuted.Load(),
		TasksCancelled: m.tasksCancelled.Load(),
		TasksPanicked:  m.tasksPanicked.Load(),
		Steals:         m.steals.Load(),
		StealFailures:  m.stealFailures.Load(),
		ParkEvents:     m.parkEvents.Load(),
		StartTime:      m.startTime,
		EndTime:        m.endTime,
	}
}
