// Package streaming defines the JSON messages the websocket history backend
// sends to a dashboard.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartMission = "start_mission"
	TypeEndMission   = "end_mission"
	TypeTransition   = "transition"
	TypeReservation  = "reservation"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartMissionPayload announces an accepted MissionInit.
type StartMissionPayload struct {
	ExperimentID string    `json:"experimentId"`
	Role         int       `json:"role"`
	Agent        string    `json:"agent"`
	StartedAt    time.Time `json:"startedAt"`
	Document     string    `json:"document,omitempty"`
}

// Point is one track sample in dashboard coordinates.
type Point struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// TelemetryPayload is the per-kind summary inside end_mission.
type TelemetryPayload struct {
	Kind       string    `json:"kind"`
	Frames     int64     `json:"frames"`
	AverageFPS float64   `json:"averageFps"`
	Failures   int       `json:"failures"`
	FirstFrame time.Time `json:"firstFrame"`
	LastFrame  time.Time `json:"lastFrame"`
}

// EndMissionPayload closes the mission started by the matching
// start_mission.
type EndMissionPayload struct {
	ExperimentID string             `json:"experimentId"`
	EndedAt      time.Time          `json:"endedAt"`
	Outcome      string             `json:"outcome"`
	Detail       string             `json:"detail,omitempty"`
	Track        []Point            `json:"track"`
	Telemetry    []TelemetryPayload `json:"telemetry"`
}

// TransitionPayload is one machine state change.
type TransitionPayload struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// ReservationPayload is one reservation change.
type ReservationPayload struct {
	Action       string    `json:"action"`
	ExperimentID string    `json:"experimentId"`
	Sender       string    `json:"sender,omitempty"`
	At           time.Time `json:"at"`
}

func NewStartMission(r *core.MissionRecord) StartMissionPayload {
	return StartMissionPayload{
		ExperimentID: r.ExperimentID,
		Role:         r.Role,
		Agent:        r.Agent,
		StartedAt:    r.StartedAt,
		Document:     r.Document,
	}
}

func NewEndMission(r *core.MissionRecord) EndMissionPayload {
	p := EndMissionPayload{
		ExperimentID: r.ExperimentID,
		EndedAt:      r.EndedAt,
		Outcome:      string(r.Outcome),
		Detail:       r.Detail,
		Track:        make([]Point, len(r.Track)),
		Telemetry:    make([]TelemetryPayload, len(r.Telemetry)),
	}
	for i, pose := range r.Track {
		p.Track[i] = Point(pose)
	}
	for i, s := range r.Telemetry {
		p.Telemetry[i] = TelemetryPayload(s)
	}
	return p
}

func NewTransition(t *core.Transition) TransitionPayload {
	return TransitionPayload(*t)
}

func NewReservation(e *core.ReservationEvent) ReservationPayload {
	return ReservationPayload{
		Action:       string(e.Action),
		ExperimentID: e.ExperimentID,
		Sender:       e.Sender,
		At:           e.At,
	}
}
