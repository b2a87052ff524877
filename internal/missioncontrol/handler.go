package missioncontrol

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/trueagi-io/Vereya-sub001/internal/dispatcher"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

// commandHandler answers agent commands for the command server. Routes are
// tried in the order registered; anything else is treated as a MissionInit.
type commandHandler struct {
	c      *Controller
	d      *dispatcher.Dispatcher
	logger *slog.Logger
}

func newCommandHandler(c *Controller, log dispatcher.Logger) (*commandHandler, error) {
	d, err := dispatcher.New(log)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	h := &commandHandler{c: c, d: d, logger: c.logger}

	d.Register(CmdReserve, h.reserve, dispatcher.Logged())
	d.Register(CmdCancelReservation, h.cancelReservation, dispatcher.Exact(), dispatcher.Logged())
	d.Register(CmdFindServer, h.findServer, dispatcher.Logged())
	d.Register(CmdKill, h.kill, dispatcher.Exact(), dispatcher.Logged())
	d.Fallback("MissionInit", h.missionInit, dispatcher.Logged())
	return h, nil
}

// OnCommand implements comms.Handler.
func (h *commandHandler) OnCommand(text, sender string) (string, bool) {
	res, err := h.d.Dispatch(dispatcher.Event{Text: text, Sender: sender, Timestamp: h.c.clock.Now()})
	if err != nil {
		h.logger.Warn("Command not handled", "sender", sender, "error", err)
		return "", false
	}
	return res.Reply, res.Keep
}

// OnError implements comms.Handler.
func (h *commandHandler) OnError(text string) {
	h.logger.Warn("Command channel error", "error", text)
}

func reply(s string) (dispatcher.Result, error) {
	return dispatcher.Result{Reply: s}, nil
}

// reserve handles RESERVE:<version>:<durationMs>:<experimentId>. The
// version is checked before anything else is parsed.
func (h *commandHandler) reserve(e dispatcher.Event) (dispatcher.Result, error) {
	parts := strings.SplitN(e.Args(CmdReserve), ":", 3)
	if parts[0] != h.c.cfg.Version {
		return reply(ReplyVersionMismatch)
	}
	if len(parts) != 3 {
		return reply(ReplyMalformedReservation)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ms < 0 {
		return reply(ReplyMalformedReservation)
	}
	experimentID := parts[2]

	if !h.c.idle() {
		return reply(ReplyBusy)
	}
	if !h.c.reservation.TryReserve(experimentID, time.Duration(ms)*time.Millisecond) {
		return reply(ReplyBusy)
	}
	h.c.recordReservation(core.ReservationReserved, experimentID, e.Sender)
	return reply(ReplyOK)
}

func (h *commandHandler) cancelReservation(e dispatcher.Event) (dispatcher.Result, error) {
	experimentID := h.c.reservation.ExperimentID()
	if !h.c.reservation.Cancel() {
		return reply(ReplyNoReservation)
	}
	h.c.recordReservation(core.ReservationCancelled, experimentID, e.Sender)
	return reply(ReplyOK)
}

func (h *commandHandler) findServer(e dispatcher.Event) (dispatcher.Result, error) {
	experimentID := e.Args(CmdFindServer)
	m := h.c.mission.Current()
	if m == nil || m.ExperimentID != experimentID {
		return reply(ReplyNoSuchServer)
	}
	if !m.Server.Known() {
		return reply(ReplyNoServerYet)
	}
	return reply(ReplyServerPrefix + m.Server.String())
}

// kill replies before the process goes down; the controller is stopped
// outside this handler.
func (h *commandHandler) kill(dispatcher.Event) (dispatcher.Result, error) {
	if !h.c.idle() || h.c.reservation.IsReserved() {
		return reply(ReplyBusy)
	}
	h.logger.Info("Kill accepted")
	h.c.kill()
	return reply(ReplyOK)
}

// missionInit accepts a MissionInit for the Dormant episode to pick up.
// Text that is not a MissionInit at all gets no reply.
func (h *commandHandler) missionInit(e dispatcher.Event) (dispatcher.Result, error) {
	m, err := h.c.codec.Decode(e.Text)
	if errors.Is(err, missioninit.ErrNotMissionInit) {
		h.logger.Debug("Ignoring unknown command", "sender", e.Sender)
		return dispatcher.Result{}, nil
	}
	if err != nil {
		return reply(ReplyErrorPrefix + err.Error())
	}
	if m.PlatformVersion != h.c.cfg.Version {
		return reply(fmt.Sprintf("%s: received %s, expected %s", ReplyVersionMismatch, m.PlatformVersion, h.c.cfg.Version))
	}
	if !h.c.idle() || !h.c.reservation.Admits(m.ExperimentID) {
		return reply(ReplyBusy)
	}
	return dispatcher.Result{Reply: ReplyOK, Keep: true}, nil
}
