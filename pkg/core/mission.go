// pkg/core/mission.go
package core

import "time"

// Outcome describes how a mission finished.
type Outcome string

const (
	OutcomeEnded   Outcome = "ended"
	OutcomeAborted Outcome = "aborted"
	OutcomeError   Outcome = "error"
)

// Pose is the observer's position and orientation at one render.
type Pose struct {
	X, Y, Z    float32
	Yaw, Pitch float32
}

// MissionRecord is the history entry written when a mission leaves Running.
type MissionRecord struct {
	ExperimentID string
	Role         int
	Agent        string // agent host:port
	StartedAt    time.Time
	EndedAt      time.Time
	Outcome      Outcome
	Detail       string
	Document     string // encoded MissionInit
	Track        []Pose
	Telemetry    []TelemetrySummary
}

// TelemetrySummary is written by a telemetry transport when it stops.
type TelemetrySummary struct {
	Kind       string
	Frames     int64
	AverageFPS float64
	Failures   int
	FirstFrame time.Time
	LastFrame  time.Time
}
