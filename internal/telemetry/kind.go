package telemetry

import "github.com/trueagi-io/Vereya-sub001/pkg/missioninit"

// Kind selects which producer feeds a transport and which agent port it
// streams to.
type Kind string

const (
	KindVideo     Kind = "video"
	KindDepth     Kind = "depth"
	KindLuminance Kind = "luminance"
	KindColourmap Kind = "colourmap"
)

// Kinds lists every kind in a fixed order.
var Kinds = []Kind{KindVideo, KindDepth, KindLuminance, KindColourmap}

// PortFor returns the agent port for kind; 0 when the agent does not
// want that stream.
func PortFor(kind Kind, agent missioninit.AgentConnection) int {
	switch kind {
	case KindVideo:
		return agent.AgentVideoPort
	case KindDepth:
		return agent.AgentDepthPort
	case KindLuminance:
		return agent.AgentLuminancePort
	case KindColourmap:
		return agent.AgentColourMapPort
	default:
		return 0
	}
}
