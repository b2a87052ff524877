// Package missioncontrol is the client side of the mission protocol: it
// answers reservation and handshake commands from agents and walks the
// client through loading, running and tearing down a mission.
package missioncontrol

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/trueagi-io/Vereya-sub001/internal/comms"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/dispatcher"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/logging"
	"github.com/trueagi-io/Vereya-sub001/internal/mission"
	"github.com/trueagi-io/Vereya-sub001/internal/reservation"
	"github.com/trueagi-io/Vereya-sub001/internal/statemachine"
	"github.com/trueagi-io/Vereya-sub001/internal/worker"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

// Dependencies holds all dependencies for the controller
type Dependencies struct {
	Host  Host
	Bus   *events.Bus
	Clock clock.Clock
	// History is optional.
	History *worker.Manager
	Logger  *slog.Logger
	// DispatchLogger logs command routing. Defaults to a no-op logger.
	DispatchLogger dispatcher.Logger
	// OnKill runs after a KILL was accepted. It must not block; it is
	// expected to stop the controller and exit. Defaults to stopping the
	// controller in the background.
	OnKill func()
}

// Config holds the controller settings.
type Config struct {
	// Version must match the version of RESERVE commands and MissionInit
	// documents exactly.
	Version   string
	Commands  config.CommandConfig
	Agent     config.AgentConfig
	Telemetry config.TelemetryConfig
	Timeouts  config.TimeoutConfig
}

// Controller owns the mission control machine and its command server.
type Controller struct {
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	machine     *statemachine.Machine
	server      *comms.Server
	handler     *commandHandler
	reservation *reservation.Reservation
	mission     *mission.Context
	codec       missioninit.Codec
	episodes    map[State]func() statemachine.Episode

	mu       sync.Mutex
	detach   func()
	run      *core.MissionRecord
	previous *missioninit.MissionInit
	stopOnce sync.Once
}

// New wires a controller. Call Start to listen and enter the first state.
func New(deps Dependencies, cfg Config) (*Controller, error) {
	if deps.Host == nil {
		return nil, errors.New("missioncontrol: host is required")
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DispatchLogger == nil {
		deps.DispatchLogger = logging.NewDispatcherLogger(zerolog.Nop())
	}

	c := &Controller{
		deps:        deps,
		cfg:         cfg,
		logger:      deps.Logger.With("component", "missioncontrol"),
		clock:       deps.Clock,
		reservation: reservation.New(deps.Clock),
		mission:     mission.NewContext(),
	}
	c.episodes = c.episodeTable()
	c.machine = statemachine.New("missioncontrol", c.episodeFor, deps.Logger)
	c.machine.OnStateChange(c.recordTransition)

	handler, err := newCommandHandler(c, deps.DispatchLogger)
	if err != nil {
		return nil, err
	}
	c.handler = handler
	c.server = comms.NewServer(cfg.Commands, handler, deps.Logger)
	return c, nil
}

func (c *Controller) episodeFor(s State) statemachine.Episode {
	if ctor, ok := c.episodes[s]; ok {
		return ctor()
	}
	return nil
}

// Start binds the command server in the background, attaches the machine
// to the bus and requests WaitingForModReady. The state is entered on the
// next tick.
func (c *Controller) Start() {
	c.server.Start()
	c.machine.RequestState(WaitingForModReady)

	c.mu.Lock()
	c.detach = c.machine.Attach(c.deps.Bus)
	c.mu.Unlock()
}

// Port blocks until the command server is bound.
func (c *Controller) Port(ctx context.Context) (int, error) {
	return c.server.Port(ctx)
}

// Stop detaches from the bus, cleans up the current episode and stops the
// command server. It must not be called from a command handler.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		detach := c.detach
		c.detach = nil
		c.mu.Unlock()
		if detach != nil {
			detach()
		}
		c.machine.Stop()
		c.server.Stop()
		c.logger.Info("Mission control stopped")
	})
}

// Machine exposes the state machine.
func (c *Controller) Machine() *statemachine.Machine { return c.machine }

// Reservation exposes the client reservation.
func (c *Controller) Reservation() *reservation.Reservation { return c.reservation }

// Mission exposes the current MissionInit.
func (c *Controller) Mission() *mission.Context { return c.mission }

// StableState is the state commands are judged against.
func (c *Controller) StableState() State { return c.machine.StableState() }

// idle reports whether the client can take new work: it is Dormant and
// has not already asked to leave Dormant on the next tick.
func (c *Controller) idle() bool {
	if c.machine.StableState() != Dormant {
		return false
	}
	_, pending := c.machine.PendingState()
	return !pending
}

// LogContext returns attributes describing what the client is doing, for
// logging.ContextHandler.
func (c *Controller) LogContext() []slog.Attr {
	attrs := []slog.Attr{slog.String("state", string(c.machine.StableState()))}
	if exp := c.mission.ExperimentID(); exp != "" {
		attrs = append(attrs, slog.String("experiment", exp))
	}
	return attrs
}

func (c *Controller) kill() {
	if c.deps.OnKill != nil {
		c.deps.OnKill()
		return
	}
	go c.Stop()
}

func (c *Controller) recordTransition(from, to State) {
	if c.deps.History == nil {
		return
	}
	c.deps.History.RecordTransition(core.Transition{
		From:   string(from),
		To:     string(to),
		Detail: c.machine.ErrorDetails(),
		At:     c.clock.Now(),
	})
}

func (c *Controller) recordReservation(action core.ReservationAction, experimentID, sender string) {
	if c.deps.History == nil {
		return
	}
	c.deps.History.RecordReservation(core.ReservationEvent{
		Action:       action,
		ExperimentID: experimentID,
		Sender:       sender,
		At:           c.clock.Now(),
	})
}

// beginMission makes m current, consumes a reservation held for it and
// opens its history record.
func (c *Controller) beginMission(m *missioninit.MissionInit, cmd comms.Command) {
	c.mission.Set(m, cmd.Text)

	if c.reservation.ReservedFor(m.ExperimentID) && c.reservation.Cancel() {
		c.recordReservation(core.ReservationConsumed, m.ExperimentID, cmd.Sender)
	}

	r := core.MissionRecord{
		ExperimentID: m.ExperimentID,
		Role:         m.ClientRole,
		Agent:        m.AgentAddress(),
		StartedAt:    c.clock.Now(),
		Document:     cmd.Text,
	}
	c.mu.Lock()
	c.run = &r
	c.mu.Unlock()

	if c.deps.History != nil {
		c.deps.History.StartMission(r)
	}
	c.logger.Info("Mission accepted", "experiment", m.ExperimentID, "agent", r.Agent, "role", m.ClientRole)
}

// publishServer records the owning server address on the current mission
// so FIND_SERVER can hand it out.
func (c *Controller) publishServer(server *missioninit.ServerConnection) {
	m := c.mission.Current()
	if m == nil || !server.Known() {
		return
	}
	updated := *m
	s := *server
	updated.Server = &s
	c.mission.Set(&updated, c.mission.Document())
}

func (c *Controller) needsNewWorld(m *missioninit.MissionInit) bool {
	c.mu.Lock()
	prev := c.previous
	c.mu.Unlock()
	if prev == nil || !missioninit.SameMission(prev, m) {
		return true
	}
	return c.deps.Host.NeedsNewWorld(m)
}

// attachRunResults stores what the Running episode measured.
func (c *Controller) attachRunResults(track []core.Pose, telemetry []core.TelemetrySummary, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return
	}
	c.run.Track = track
	c.run.Telemetry = telemetry
	if detail != "" {
		c.run.Detail = detail
	}
}

func (c *Controller) runDetail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return ""
	}
	return c.run.Detail
}

// endMission closes the history record and forgets the mission.
func (c *Controller) endMission(outcome core.Outcome, detail string) {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.previous = c.mission.Current()
	c.mu.Unlock()

	if r == nil {
		return
	}
	r.EndedAt = c.clock.Now()
	r.Outcome = outcome
	if detail != "" {
		r.Detail = detail
	}
	if c.deps.History != nil {
		c.deps.History.EndMission(*r)
	}
	c.logger.Info("Mission finished", "experiment", r.ExperimentID, "outcome", outcome, "detail", r.Detail)
}

// fail records detail and moves ep to the error state next.
func (c *Controller) fail(ep *statemachine.Base, next State, detail string) {
	c.logger.Warn("Mission failed", "state", ep.State(), "next", next, "detail", detail)
	c.machine.SetErrorDetails(detail)
	ep.EpisodeCompleted(next)
}

// notifyAgent tells the agent of the current mission that it is over.
// Best effort.
func (c *Controller) notifyAgent(state State, detail string) {
	m := c.mission.Current()
	if m == nil {
		return
	}
	msg := MissionEndedPrefix + string(state)
	if detail != "" {
		msg += ":" + detail
	}
	// Close lets the writer deliver the notice in the background.
	ch := comms.NewChannel(m.AgentAddress(), c.cfg.Agent.SendTimeout, c.deps.Logger)
	defer ch.Close()
	if !ch.SendText(msg) {
		c.logger.Warn("Could not queue agent notice", "agent", m.AgentAddress(), "state", state)
	}
}
