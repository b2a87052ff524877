package missioncontrol

import (
	"github.com/trueagi-io/Vereya-sub001/internal/telemetry"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

// Host is the client process the machine drives. Every method is called
// from the tick goroutine and must not block for long.
type Host interface {
	telemetry.Source

	// ModReady reports whether the client finished loading.
	ModReady() bool

	// CreateHandlers builds the mission handlers described by m.
	CreateHandlers(m *missioninit.MissionInit) error

	// NeedsNewWorld reports whether m cannot run in the loaded world.
	NeedsNewWorld(m *missioninit.MissionInit) bool
	// CreateWorld starts creating the world for m. Completion is signalled
	// by a world load event or by WorldReady.
	CreateWorld(m *missioninit.MissionInit) error
	WorldReady() bool

	// ServerReady polls the mission server. For the owning client the
	// returned connection is the address other clients should join.
	ServerReady(m *missioninit.MissionInit) (server *missioninit.ServerConnection, ready bool, err error)

	// MissionOutcome reports whether the running mission is over.
	MissionOutcome() (outcome core.Outcome, detail string, done bool)

	// FrameBytes is the pixel buffer size of one frame of kind.
	FrameBytes(kind telemetry.Kind) int

	// TeardownMission releases everything built for the mission.
	TeardownMission()
}
