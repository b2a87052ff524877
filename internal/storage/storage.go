// internal/storage/storage.go
package storage

import "github.com/trueagi-io/Vereya-sub001/pkg/core"

// Backend is the interface all mission history implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Mission lifecycle. StartMission is called when a MissionInit is
	// accepted, EndMission when it leaves Running or fails.
	StartMission(r *core.MissionRecord) error
	EndMission(r *core.MissionRecord) error

	// Machine and reservation history
	RecordTransition(t *core.Transition) error
	RecordReservation(e *core.ReservationEvent) error
}

// Reader is implemented by backends that can return what they stored.
type Reader interface {
	Missions() ([]core.MissionRecord, error)
	Transitions() ([]core.Transition, error)
	Reservations() ([]core.ReservationEvent, error)
}
