package statemachine

import (
	"sync/atomic"

	"github.com/trueagi-io/Vereya-sub001/internal/events"
)

// Episode is the behaviour bound to one state while that state is current.
// Implementations embed Base.
type Episode interface {
	// Start runs the entry logic. Errors and panics are recorded by the
	// machine as the current error detail.
	Start() error
	// Cleanup releases whatever the episode acquired. Called once, when the
	// machine leaves the episode's state.
	Cleanup()

	base() *Base
}

// Optional host callbacks. The machine only delivers them while the
// episode is live.
type (
	TickHandler interface {
		OnTick(events.Event)
	}
	RenderStartHandler interface {
		OnRenderStart(events.Event)
	}
	RenderEndHandler interface {
		OnRenderEnd(events.Event)
	}
	WorldLoadHandler interface {
		OnWorldLoad(events.Event)
	}
)

// Base carries the lifecycle shared by every episode.
type Base struct {
	machine *Machine
	state   State
	live    atomic.Bool
}

func (b *Base) base() *Base { return b }

// IsLive reports whether the episode still receives callbacks. It turns
// false the moment the episode completes.
func (b *Base) IsLive() bool { return b.live.Load() }

// State is the state this episode is bound to.
func (b *Base) State() State { return b.state }

// Machine returns the owning machine.
func (b *Base) Machine() *Machine { return b.machine }

// EpisodeCompleted stops callbacks to this episode and requests next.
func (b *Base) EpisodeCompleted(next State) {
	b.live.Store(false)
	if b.machine != nil {
		b.machine.RequestState(next)
	}
}

// Start is a no-op; episodes override it.
func (b *Base) Start() error { return nil }

// Cleanup is a no-op; episodes that hold resources override it.
func (b *Base) Cleanup() {}
