// internal/storage/memory/memory.go
package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// Backend keeps mission history in memory for the life of the process.
type Backend struct {
	mu           sync.RWMutex
	missions     []core.MissionRecord
	open         map[string]int // experiment id -> index in missions
	transitions  []core.Transition
	reservations []core.ReservationEvent
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{open: make(map[string]int)}
}

func (b *Backend) Init() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

// StartMission appends an open mission record.
func (b *Backend) StartMission(r *core.MissionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.missions = append(b.missions, *r)
	b.open[r.ExperimentID] = len(b.missions) - 1
	return nil
}

// EndMission completes the open record for the same experiment, or
// appends r when none is open.
func (b *Backend) EndMission(r *core.MissionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.open[r.ExperimentID]; ok {
		b.missions[i] = *r
		delete(b.open, r.ExperimentID)
		return nil
	}
	b.missions = append(b.missions, *r)
	return nil
}

func (b *Backend) RecordTransition(t *core.Transition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, *t)
	return nil
}

func (b *Backend) RecordReservation(e *core.ReservationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reservations = append(b.reservations, *e)
	return nil
}

func (b *Backend) Missions() ([]core.MissionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.MissionRecord(nil), b.missions...), nil
}

func (b *Backend) Transitions() ([]core.Transition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Transition(nil), b.transitions...), nil
}

func (b *Backend) Reservations() ([]core.ReservationEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.ReservationEvent(nil), b.reservations...), nil
}

// export is the JSON document written by Export.
type export struct {
	Missions     []core.MissionRecord    `json:"missions"`
	Transitions  []core.Transition       `json:"transitions"`
	Reservations []core.ReservationEvent `json:"reservations"`
}

// Export writes everything recorded so far as one JSON document.
func (b *Backend) Export(w io.Writer) error {
	b.mu.RLock()
	doc := export{
		Missions:     b.missions,
		Transitions:  b.transitions,
		Reservations: b.reservations,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(doc)
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	return nil
}
