// pkg/core/events.go
package core

import "time"

// Transition records one completed state change of the mission control machine.
type Transition struct {
	From   string
	To     string
	Detail string // error detail at the time of the change, if any
	At     time.Time
}

// ReservationAction is what happened to a reservation.
type ReservationAction string

const (
	ReservationReserved  ReservationAction = "reserved"
	ReservationCancelled ReservationAction = "cancelled"
	ReservationConsumed  ReservationAction = "consumed"
)

// ReservationEvent records a change of the client reservation.
type ReservationEvent struct {
	Action       ReservationAction
	ExperimentID string
	Sender       string
	At           time.Time
}
