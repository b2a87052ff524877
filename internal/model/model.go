package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every table of the mission history schema.
var DatabaseModels = []interface{}{
	&ClientInfo{},
	&Mission{},
	&TelemetrySummary{},
	&Transition{},
	&ReservationEvent{},
}

// ClientInfo identifies the client that owns the database.
type ClientInfo struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt       time.Time `json:"createdAt"`
	PlatformVersion string    `json:"platformVersion" gorm:"size:32"`
	Hostname        string    `json:"hostname" gorm:"size:128"`
}

func (*ClientInfo) TableName() string {
	return "client_info"
}

// Mission is one MissionInit that reached the client, from acceptance to
// its outcome.
type Mission struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	ExperimentID string    `json:"experimentId" gorm:"size:128;index:idx_mission_experiment_id"`
	Role         int       `json:"role"`
	Agent        string    `json:"agent" gorm:"size:128"` // agent host:port
	StartedAt    time.Time `json:"startedAt" gorm:"type:timestamptz;"`
	EndedAt      time.Time `json:"endedAt" gorm:"type:timestamptz;"`
	Outcome      string    `json:"outcome" gorm:"size:32;index:idx_mission_outcome"`
	Detail       string    `json:"detail" gorm:"size:2048"`

	Document string          `json:"document"` // MissionInit as received
	Settings datatypes.JSON  `json:"settings"` // decoded MissionInit
	Track    geom.LineString `json:"track"`    // sampled observer path
	Distance float64         `json:"distance"`

	Telemetry []TelemetrySummary `json:"telemetry" gorm:"foreignKey:MissionID"`
}

func (*Mission) TableName() string {
	return "missions"
}

// TelemetrySummary is what one telemetry stream achieved during a mission.
type TelemetrySummary struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	MissionID  uint      `json:"missionId" gorm:"index:idx_telemetry_mission_id"`
	Kind       string    `json:"kind" gorm:"size:16"`
	Frames     int64     `json:"frames"`
	AverageFPS float64   `json:"averageFps"`
	Failures   int       `json:"failures"`
	FirstFrame time.Time `json:"firstFrame" gorm:"type:timestamptz;"`
	LastFrame  time.Time `json:"lastFrame" gorm:"type:timestamptz;"`
}

func (*TelemetrySummary) TableName() string {
	return "telemetry_summaries"
}

// Transition is one state change of the mission control machine.
type Transition struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;index:idx_transition_time"`
	FromState string    `json:"fromState" gorm:"size:64"`
	ToState   string    `json:"toState" gorm:"size:64;index:idx_transition_to_state"`
	Detail    string    `json:"detail" gorm:"size:2048"`
}

func (*Transition) TableName() string {
	return "transitions"
}

// ReservationEvent records reserve, cancel and consume actions.
type ReservationEvent struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`
	Action       string    `json:"action" gorm:"size:16"`
	ExperimentID string    `json:"experimentId" gorm:"size:128"`
	Sender       string    `json:"sender" gorm:"size:128"`
}

func (*ReservationEvent) TableName() string {
	return "reservation_events"
}
