package missioncontrol

import "github.com/trueagi-io/Vereya-sub001/internal/statemachine"

// State is one state of the mission control machine.
type State = statemachine.State

const (
	WaitingForModReady          State = "WaitingForModReady"
	Dormant                     State = "Dormant"
	CreatingHandlers            State = "CreatingHandlers"
	EvaluatingWorldRequirements State = "EvaluatingWorldRequirements"
	CreatingNewWorld            State = "CreatingNewWorld"
	WaitingForServerReady       State = "WaitingForServerReady"
	Running                     State = "Running"
	MissionEnded                State = "MissionEnded"
	MissionAborted              State = "MissionAborted"

	ErrorDuffHandlers                  State = "ErrorDuffHandlers"
	ErrorNoServerConnection            State = "ErrorNoServerConnection"
	ErrorCannotCreateWorld             State = "ErrorCannotCreateWorld"
	ErrorTimedOutWaitingForWorldCreate State = "ErrorTimedOutWaitingForWorldCreate"
	ErrorTimedOutWaitingForServer      State = "ErrorTimedOutWaitingForServer"
	ErrorLostAgent                     State = "ErrorLostAgent"
)

// ErrorStates lists every error state. Each one reports to the agent,
// tears the mission down and returns to Dormant.
var ErrorStates = []State{
	ErrorDuffHandlers,
	ErrorNoServerConnection,
	ErrorCannotCreateWorld,
	ErrorTimedOutWaitingForWorldCreate,
	ErrorTimedOutWaitingForServer,
	ErrorLostAgent,
}

// IsErrorState reports whether s is one of ErrorStates.
func IsErrorState(s State) bool {
	for _, e := range ErrorStates {
		if e == s {
			return true
		}
	}
	return false
}

// Inbound commands
const (
	CmdReserve           = "RESERVE:"
	CmdCancelReservation = "CANCEL_RESERVATION"
	CmdFindServer        = "FIND_SERVER"
	CmdKill              = "KILL"
)

// Reply tokens. Controllers match these literally.
const (
	ReplyOK                   = "OK"
	ReplyBusy                 = "BUSY"
	ReplyVersionMismatch      = "VERSION_MISMATCH"
	ReplyErrorPrefix          = "ERROR: "
	ReplyMalformedReservation = ReplyErrorPrefix + "malformed reservation request"
	ReplyNoReservation        = ReplyErrorPrefix + "no reservation to cancel"
	ReplyServerPrefix         = "SERVER:"
	ReplyNoServerYet          = "NO_SERVER_YET"
	ReplyNoSuchServer         = "NO_SUCH_SERVER"
)

// Outbound messages to the agent
const (
	PingPayload        = "PING"
	MissionEndedPrefix = "MISSION_ENDED:"
)
