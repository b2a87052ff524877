// Package worker writes mission history off the tick goroutine. Records
// are queued and applied to the storage backend in order by one goroutine.
package worker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trueagi-io/Vereya-sub001/internal/queue"
	"github.com/trueagi-io/Vereya-sub001/internal/storage"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// DefaultQueueLimit bounds the number of records waiting for the backend.
const DefaultQueueLimit = 4096

// ErrStopped is returned by Flush after Stop.
var ErrStopped = errors.New("history worker stopped")

// Diagnostics receives mission summaries next to the history backend, for
// example an InfluxDB writer.
type Diagnostics interface {
	RecordMission(r core.MissionRecord) error
	RecordTransition(t core.Transition) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend     storage.Backend
	Diagnostics Diagnostics
	Logger      *slog.Logger
}

type job struct {
	name string
	run  func() error
}

// Manager owns the history queue and its writer goroutine.
type Manager struct {
	deps Dependencies
	jobs *queue.Queue[job]

	wake chan struct{}
	// flushes does not go through jobs, so a full queue cannot drop a
	// flush request.
	flushes chan chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	lastWrite atomic.Int64
	failures  atomic.Int64
}

// NewManager creates a stopped manager. limit <= 0 uses DefaultQueueLimit.
func NewManager(deps Dependencies, limit int) *Manager {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "history")
	return &Manager{
		deps: deps,
		jobs: queue.New[job](limit),
		wake:    make(chan struct{}, 1),
		flushes: make(chan chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.wg.Add(1)
	go m.loop()
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.wake:
			m.drain()
		case done := <-m.flushes:
			m.drain()
			close(done)
		case <-m.quit:
			m.drain()
			return
		}
	}
}

func (m *Manager) drain() {
	for _, j := range m.jobs.GetAndEmpty() {
		start := time.Now()
		if err := j.run(); err != nil {
			m.failures.Add(1)
			m.deps.Logger.Error("History write failed", "record", j.name, "error", err)
		}
		m.lastWrite.Store(int64(time.Since(start)))
	}
}

func (m *Manager) enqueue(j job) {
	if dropped := m.jobs.Push(j); dropped > 0 {
		m.deps.Logger.Warn("History queue full, dropped oldest records", "dropped", dropped)
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// StartMission queues the start of a mission.
func (m *Manager) StartMission(r core.MissionRecord) {
	if m.deps.Backend == nil {
		return
	}
	m.enqueue(job{name: "start mission", run: func() error {
		return m.deps.Backend.StartMission(&r)
	}})
}

// EndMission queues the mission outcome for the backend and diagnostics.
func (m *Manager) EndMission(r core.MissionRecord) {
	m.enqueue(job{name: "end mission", run: func() error {
		var errs []error
		if m.deps.Backend != nil {
			errs = append(errs, m.deps.Backend.EndMission(&r))
		}
		if m.deps.Diagnostics != nil {
			errs = append(errs, m.deps.Diagnostics.RecordMission(r))
		}
		return errors.Join(errs...)
	}})
}

// RecordTransition queues one state change.
func (m *Manager) RecordTransition(t core.Transition) {
	m.enqueue(job{name: "transition", run: func() error {
		var errs []error
		if m.deps.Backend != nil {
			errs = append(errs, m.deps.Backend.RecordTransition(&t))
		}
		if m.deps.Diagnostics != nil {
			errs = append(errs, m.deps.Diagnostics.RecordTransition(t))
		}
		return errors.Join(errs...)
	}})
}

// RecordReservation queues one reservation change.
func (m *Manager) RecordReservation(e core.ReservationEvent) {
	if m.deps.Backend == nil {
		return
	}
	m.enqueue(job{name: "reservation", run: func() error {
		return m.deps.Backend.RecordReservation(&e)
	}})
}

// Flush blocks until every record queued before the call was written.
func (m *Manager) Flush() error {
	m.mu.Lock()
	running := m.started && !m.stopped
	m.mu.Unlock()
	if !running {
		return ErrStopped
	}

	done := make(chan struct{})
	select {
	case m.flushes <- done:
	case <-m.quit:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-m.quit:
		return ErrStopped
	}
}

// Stop writes what is still queued and stops the goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	close(m.quit)
	if started {
		m.wg.Wait()
	} else {
		m.drain()
	}
}

// Pending returns the number of queued records.
func (m *Manager) Pending() int {
	return m.jobs.Len()
}

// Failures returns how many writes failed so far.
func (m *Manager) Failures() int64 {
	return m.failures.Load()
}

// LastWriteDuration returns how long the last record took to write.
func (m *Manager) LastWriteDuration() time.Duration {
	return time.Duration(m.lastWrite.Load())
}
