package missioncontrol

import (
	"errors"
	"fmt"
	"time"

	"github.com/trueagi-io/Vereya-sub001/internal/comms"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/geo"
	"github.com/trueagi-io/Vereya-sub001/internal/statemachine"
	"github.com/trueagi-io/Vereya-sub001/internal/telemetry"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

var errNoMission = errors.New("no current mission")

func (c *Controller) episodeTable() map[State]func() statemachine.Episode {
	table := map[State]func() statemachine.Episode{
		WaitingForModReady:          func() statemachine.Episode { return &modReadyEpisode{c: c} },
		Dormant:                     func() statemachine.Episode { return &dormantEpisode{c: c} },
		CreatingHandlers:            func() statemachine.Episode { return &creatingHandlersEpisode{c: c} },
		EvaluatingWorldRequirements: func() statemachine.Episode { return &evaluateWorldEpisode{c: c} },
		CreatingNewWorld:            func() statemachine.Episode { return &createWorldEpisode{c: c} },
		WaitingForServerReady:       func() statemachine.Episode { return &serverReadyEpisode{c: c} },
		Running:                     func() statemachine.Episode { return &runningEpisode{c: c} },
		MissionEnded:                func() statemachine.Episode { return &missionOverEpisode{c: c, outcome: core.OutcomeEnded} },
		MissionAborted:              func() statemachine.Episode { return &missionOverEpisode{c: c, outcome: core.OutcomeAborted} },
	}
	for _, s := range ErrorStates {
		table[s] = func() statemachine.Episode { return &missionOverEpisode{c: c, outcome: core.OutcomeError} }
	}
	return table
}

// modReadyEpisode waits for the client to finish loading.
type modReadyEpisode struct {
	statemachine.Base
	c *Controller
}

func (e *modReadyEpisode) OnTick(events.Event) {
	if e.c.deps.Host.ModReady() {
		e.EpisodeCompleted(Dormant)
	}
}

// dormantEpisode is the idle state. It polls for a MissionInit kept by the
// command server.
//
// It sends no pings: outside a mission there is no agent address to ping,
// so only the running episode keeps an agent channel.
type dormantEpisode struct {
	statemachine.Base
	c *Controller
}

// Start drops any command kept while the previous mission was being set
// up; each mission starts from a MissionInit accepted in Dormant.
func (e *dormantEpisode) Start() error {
	e.c.machine.ClearErrorDetails()
	e.c.mission.Clear()
	e.c.server.ClearCommands()
	return nil
}

func (e *dormantEpisode) OnTick(events.Event) {
	cmd, ok := e.c.server.TakeCommand()
	if !ok {
		return
	}
	m, err := e.c.codec.Decode(cmd.Text)
	if err != nil {
		e.c.logger.Warn("Kept command is not a MissionInit", "sender", cmd.Sender, "error", err)
		return
	}
	e.c.beginMission(m, cmd)
	e.EpisodeCompleted(CreatingHandlers)
}

type creatingHandlersEpisode struct {
	statemachine.Base
	c *Controller
}

func (e *creatingHandlersEpisode) Start() error {
	m := e.c.mission.Current()
	if m == nil {
		e.c.fail(&e.Base, ErrorDuffHandlers, errNoMission.Error())
		return nil
	}
	if err := e.c.deps.Host.CreateHandlers(m); err != nil {
		e.c.fail(&e.Base, ErrorDuffHandlers, fmt.Sprintf("could not create mission handlers: %v", err))
		return nil
	}
	e.EpisodeCompleted(EvaluatingWorldRequirements)
	return nil
}

type evaluateWorldEpisode struct {
	statemachine.Base
	c *Controller
}

func (e *evaluateWorldEpisode) Start() error {
	m := e.c.mission.Current()
	if m == nil {
		e.c.fail(&e.Base, ErrorCannotCreateWorld, errNoMission.Error())
		return nil
	}
	if e.c.needsNewWorld(m) {
		e.EpisodeCompleted(CreatingNewWorld)
	} else {
		e.EpisodeCompleted(WaitingForServerReady)
	}
	return nil
}

// createWorldEpisode waits for the host to load the new world, up to the
// world creation timeout.
type createWorldEpisode struct {
	statemachine.Base
	c        *Controller
	deadline time.Time
}

func (e *createWorldEpisode) Start() error {
	e.deadline = e.c.clock.Now().Add(e.c.cfg.Timeouts.WorldCreate)
	m := e.c.mission.Current()
	if m == nil {
		e.c.fail(&e.Base, ErrorCannotCreateWorld, errNoMission.Error())
		return nil
	}
	if err := e.c.deps.Host.CreateWorld(m); err != nil {
		e.c.fail(&e.Base, ErrorCannotCreateWorld, fmt.Sprintf("could not create world: %v", err))
	}
	return nil
}

func (e *createWorldEpisode) OnWorldLoad(ev events.Event) {
	e.c.logger.Info("World loaded", "world", ev.World)
	e.EpisodeCompleted(WaitingForServerReady)
}

func (e *createWorldEpisode) OnTick(events.Event) {
	if e.c.deps.Host.WorldReady() {
		e.EpisodeCompleted(WaitingForServerReady)
		return
	}
	if !e.c.clock.Now().Before(e.deadline) {
		e.c.fail(&e.Base, ErrorTimedOutWaitingForWorldCreate,
			fmt.Sprintf("timed out waiting for world creation after %s", e.c.cfg.Timeouts.WorldCreate))
	}
}

// serverReadyEpisode waits for the mission server, up to the server ready
// timeout, and publishes its address for FIND_SERVER.
type serverReadyEpisode struct {
	statemachine.Base
	c        *Controller
	deadline time.Time
}

func (e *serverReadyEpisode) Start() error {
	e.deadline = e.c.clock.Now().Add(e.c.cfg.Timeouts.ServerReady)
	return nil
}

func (e *serverReadyEpisode) OnTick(events.Event) {
	m := e.c.mission.Current()
	if m == nil {
		e.c.fail(&e.Base, ErrorNoServerConnection, errNoMission.Error())
		return
	}
	server, ready, err := e.c.deps.Host.ServerReady(m)
	switch {
	case err != nil:
		e.c.fail(&e.Base, ErrorNoServerConnection, fmt.Sprintf("could not connect to server: %v", err))
	case ready:
		e.c.publishServer(server)
		e.EpisodeCompleted(Running)
	case !e.c.clock.Now().Before(e.deadline):
		e.c.fail(&e.Base, ErrorTimedOutWaitingForServer,
			fmt.Sprintf("timed out waiting for server after %s", e.c.cfg.Timeouts.ServerReady))
	}
}

// summaries collects what the transports report when they stop.
type summaries []core.TelemetrySummary

func (s *summaries) RecordTelemetry(sum core.TelemetrySummary) {
	*s = append(*s, sum)
}

// runningEpisode streams telemetry, pings the agent and waits for the host
// to end the mission.
type runningEpisode struct {
	statemachine.Base
	c *Controller

	agent      *comms.Channel
	track      *geo.Track
	transports []*telemetry.Transport
	nextPing   time.Time
	detail     string
}

func (e *runningEpisode) Start() error {
	m := e.c.mission.Current()
	if m == nil {
		e.c.fail(&e.Base, ErrorLostAgent, errNoMission.Error())
		return nil
	}
	e.agent = comms.NewChannel(m.AgentAddress(), e.c.cfg.Agent.SendTimeout, e.c.deps.Logger)
	e.track = geo.NewTrack(e.c.cfg.Telemetry.TrackInterval)
	e.nextPing = e.c.clock.Now()

	return e.startTelemetry(m)
}

func (e *runningEpisode) startTelemetry(m *missioninit.MissionInit) error {
	for _, kind := range telemetry.Kinds {
		if telemetry.PortFor(kind, m.Agent) <= 0 {
			continue
		}
		opts := []telemetry.Option{
			telemetry.WithClock(e.c.clock),
			telemetry.WithLogger(e.c.deps.Logger),
		}
		if len(e.transports) == 0 {
			opts = append(opts, telemetry.WithTrack(e.track))
		}
		t, err := telemetry.New(m.Agent, e.c.deps.Bus, e.c.deps.Host, e.c.cfg.Telemetry, opts...)
		if err != nil {
			return fmt.Errorf("telemetry %s: %w", kind, err)
		}
		if err := t.Start(kind, e.c.deps.Host.FrameBytes(kind)); err != nil {
			return fmt.Errorf("telemetry %s: %w", kind, err)
		}
		e.transports = append(e.transports, t)
	}
	return nil
}

func (e *runningEpisode) OnTick(events.Event) {
	now := e.c.clock.Now()
	if !now.Before(e.nextPing) {
		e.nextPing = now.Add(e.c.cfg.Agent.PingInterval)
		if !e.agent.SendText(PingPayload) {
			e.c.fail(&e.Base, ErrorLostAgent, "lost contact with agent at "+e.agent.Addr())
			return
		}
	}

	outcome, detail, done := e.c.deps.Host.MissionOutcome()
	if !done {
		return
	}
	e.detail = detail
	if outcome == core.OutcomeEnded {
		e.EpisodeCompleted(MissionEnded)
	} else {
		e.EpisodeCompleted(MissionAborted)
	}
}

func (e *runningEpisode) Cleanup() {
	var sums summaries
	for _, t := range e.transports {
		if err := t.Stop(&sums); err != nil {
			e.c.logger.Debug("Telemetry stop", "error", err)
		}
	}
	e.transports = nil
	if e.agent != nil {
		e.agent.Close()
	}

	var poses []core.Pose
	if e.track != nil {
		poses = e.track.Poses()
	}
	e.c.attachRunResults(poses, sums, e.detail)
}

// missionOverEpisode ends a mission: it tells the agent, closes the
// history record, tears the mission down and returns to Dormant. Every
// error state uses it too.
type missionOverEpisode struct {
	statemachine.Base
	c       *Controller
	outcome core.Outcome
}

func (e *missionOverEpisode) Start() error {
	state := e.State()
	detail := e.c.machine.ErrorDetails()
	if detail == "" {
		detail = e.c.runDetail()
	}

	e.c.notifyAgent(state, detail)
	e.c.endMission(e.outcome, detail)
	e.c.deps.Host.TeardownMission()
	e.EpisodeCompleted(Dormant)
	return nil
}
