// Package reservation tracks the short-lived claim an agent places on an
// idle client before sending it a mission.
package reservation

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// IDPrefix is prepended to the experiment id to form the reservation id.
const IDPrefix = "RESERVED"

// Reservation is safe for concurrent use. Expiry is evaluated lazily on
// every access; there is no background timer.
type Reservation struct {
	mu        sync.Mutex
	clock     clock.Clock
	id        string
	expiresAt time.Time
}

// New returns an unreserved Reservation.
func New(c clock.Clock) *Reservation {
	return &Reservation{clock: c}
}

// Reserve claims the client for experimentID for d.
func (r *Reservation) Reserve(experimentID string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = IDPrefix + experimentID
	r.expiresAt = r.clock.Now().Add(d)
}

// TryReserve reserves only when not currently reserved.
func (r *Reservation) TryReserve(experimentID string, d time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validLocked() {
		return false
	}
	r.id = IDPrefix + experimentID
	r.expiresAt = r.clock.Now().Add(d)
	return true
}

// Cancel clears a live reservation and reports whether there was one.
func (r *Reservation) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validLocked() {
		return false
	}
	r.clearLocked()
	return true
}

// IsReserved reports whether a non-expired reservation exists.
func (r *Reservation) IsReserved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validLocked()
}

// ReservedFor reports whether a live reservation belongs to experimentID.
func (r *Reservation) ReservedFor(experimentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validLocked() && r.id == IDPrefix+experimentID
}

// Admits reports whether a mission for experimentID may proceed: there is
// no live reservation or it belongs to experimentID.
func (r *Reservation) Admits(experimentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.validLocked() || r.id == IDPrefix+experimentID
}

// ExperimentID returns the experiment holding the live reservation, or "".
func (r *Reservation) ExperimentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validLocked() {
		return ""
	}
	return strings.TrimPrefix(r.id, IDPrefix)
}

// validLocked clears an expired reservation as a side effect.
func (r *Reservation) validLocked() bool {
	if r.id == "" {
		return false
	}
	if !r.expiresAt.After(r.clock.Now()) {
		r.clearLocked()
		return false
	}
	return true
}

func (r *Reservation) clearLocked() {
	r.id = ""
	r.expiresAt = time.Time{}
}
