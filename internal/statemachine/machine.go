// Package statemachine drives a set of states, each bound to an Episode,
// from the host tick.
package statemachine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/trueagi-io/Vereya-sub001/internal/events"
)

// State names one state of a machine.
type State string

// EpisodeFactory resolves the episode for a state. It may return nil when
// a state has no behaviour.
type EpisodeFactory func(State) Episode

// ChangeHook runs after the new episode is installed and before it starts.
type ChangeHook func(from, to State)

// Machine holds exactly one current state and at most one pending state.
type Machine struct {
	name      string
	logger    *slog.Logger
	toEpisode EpisodeFactory

	// serializes UpdateState
	updating sync.Mutex

	mu         sync.Mutex
	current    State
	stable     State
	pending    State
	hasPending bool
	episode    Episode
	errDetail  string
	hooks      []ChangeHook
}

// New creates a machine with no current state. Request the initial state
// and call UpdateState to enter it.
func New(name string, toEpisode EpisodeFactory, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		name:      name,
		logger:    logger.With("machine", name),
		toEpisode: toEpisode,
	}
}

// OnStateChange registers a hook called on every transition.
func (m *Machine) OnStateChange(h ChangeHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// RequestState records next as the pending transition, replacing any
// earlier request not yet consumed by UpdateState.
func (m *Machine) RequestState(next State) {
	m.mu.Lock()
	dropped, overwritten := m.pending, m.hasPending && m.pending != next
	m.pending = next
	m.hasPending = true
	m.mu.Unlock()

	if overwritten {
		m.logger.Debug("pending state overwritten", "dropped", dropped, "next", next)
	}
}

// UpdateState finalizes the pending transition, if any. The previous
// episode is cleaned up, the new one installed and marked live, hooks run,
// then the new episode starts. A failing start is recorded as the error
// detail and the new state stays current.
func (m *Machine) UpdateState() {
	m.updating.Lock()
	defer m.updating.Unlock()

	m.mu.Lock()
	if !m.hasPending {
		m.mu.Unlock()
		return
	}
	next := m.pending
	m.hasPending = false
	from := m.current
	prev := m.episode
	hooks := append([]ChangeHook(nil), m.hooks...)
	m.mu.Unlock()

	if prev != nil {
		prev.base().live.Store(false)
		m.guard("cleanup", from, prev.Cleanup)
	}

	var ep Episode
	if m.toEpisode != nil {
		ep = m.toEpisode(next)
	}
	if ep != nil {
		b := ep.base()
		b.machine = m
		b.state = next
		b.live.Store(true)
	}

	m.mu.Lock()
	m.current = next
	m.episode = ep
	m.mu.Unlock()

	m.logger.Info("state change", "from", from, "to", next)
	for _, h := range hooks {
		m.guard("state change hook", next, func() { h(from, next) })
	}

	if ep != nil {
		if err := m.start(ep); err != nil {
			m.logger.Error("episode start failed", "state", next, "error", err)
			m.SetErrorDetails(err.Error())
		}
	}

	m.mu.Lock()
	m.stable = next
	m.mu.Unlock()
}

func (m *Machine) start(ep Episode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug("episode start panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("panic during start: %v", r)
		}
	}()
	return ep.Start()
}

// guard runs f and logs a panic instead of propagating it.
func (m *Machine) guard(what string, state State, f func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("recovered panic", "in", what, "state", state, "panic", r)
		}
	}()
	f()
}

// Stop cleans up the current episode and drops any pending request. The
// state stays current but no episode receives callbacks afterwards.
func (m *Machine) Stop() {
	m.updating.Lock()
	defer m.updating.Unlock()

	m.mu.Lock()
	ep := m.episode
	state := m.current
	m.episode = nil
	m.hasPending = false
	m.mu.Unlock()

	if ep != nil {
		ep.base().live.Store(false)
		m.guard("cleanup", state, ep.Cleanup)
	}
}

// CurrentState returns the state most recently installed, which may still
// be starting.
func (m *Machine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StableState returns the last state whose setup has completed. Safe to
// call from any goroutine.
func (m *Machine) StableState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stable
}

// PendingState returns the requested but not yet applied state.
func (m *Machine) PendingState() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.hasPending
}

// Episode returns the current episode, or nil.
func (m *Machine) Episode() Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.episode
}

func (m *Machine) ErrorDetails() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errDetail
}

func (m *Machine) SetErrorDetails(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errDetail = detail
}

func (m *Machine) ClearErrorDetails() {
	m.SetErrorDetails("")
}

func (m *Machine) liveEpisode() Episode {
	m.mu.Lock()
	ep := m.episode
	m.mu.Unlock()
	if ep == nil || !ep.base().IsLive() {
		return nil
	}
	return ep
}

// Tick delivers a client tick to the live episode.
func (m *Machine) Tick(e events.Event) {
	if h, ok := m.liveEpisode().(TickHandler); ok {
		m.guard("tick", m.CurrentState(), func() { h.OnTick(e) })
	}
}

// RenderStart delivers a render-start callback to the live episode.
func (m *Machine) RenderStart(e events.Event) {
	if h, ok := m.liveEpisode().(RenderStartHandler); ok {
		m.guard("render start", m.CurrentState(), func() { h.OnRenderStart(e) })
	}
}

// RenderEnd delivers a render-end callback to the live episode.
func (m *Machine) RenderEnd(e events.Event) {
	if h, ok := m.liveEpisode().(RenderEndHandler); ok {
		m.guard("render end", m.CurrentState(), func() { h.OnRenderEnd(e) })
	}
}

// WorldLoaded delivers a world-load callback to the live episode.
func (m *Machine) WorldLoaded(e events.Event) {
	if h, ok := m.liveEpisode().(WorldLoadHandler); ok {
		m.guard("world load", m.CurrentState(), func() { h.OnWorldLoad(e) })
	}
}

// Attach subscribes the machine to bus. Each tick first applies a pending
// transition and then reaches the episode. The returned function detaches.
func (m *Machine) Attach(bus *events.Bus) (detach func()) {
	unsubs := []func(){
		bus.Subscribe(events.TopicTick, func(e events.Event) {
			m.UpdateState()
			m.Tick(e)
		}),
		bus.Subscribe(events.TopicRenderStart, m.RenderStart),
		bus.Subscribe(events.TopicRenderEnd, m.RenderEnd),
		bus.Subscribe(events.TopicWorldLoad, m.WorldLoaded),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
