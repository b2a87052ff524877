package convert

import (
	"github.com/trueagi-io/Vereya-sub001/internal/geo"
	"github.com/trueagi-io/Vereya-sub001/internal/model"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// MissionToCore converts a gorm model back to a core.MissionRecord. Track
// poses come back without orientation.
func MissionToCore(m model.Mission) core.MissionRecord {
	r := core.MissionRecord{
		ExperimentID: m.ExperimentID,
		Role:         m.Role,
		Agent:        m.Agent,
		StartedAt:    m.StartedAt,
		EndedAt:      m.EndedAt,
		Outcome:      core.Outcome(m.Outcome),
		Detail:       m.Detail,
		Document:     m.Document,
		Track:        geo.LineStringToPoses(m.Track),
	}
	for _, s := range m.Telemetry {
		r.Telemetry = append(r.Telemetry, TelemetrySummaryToCore(s))
	}
	return r
}

func TelemetrySummaryToCore(s model.TelemetrySummary) core.TelemetrySummary {
	return core.TelemetrySummary{
		Kind:       s.Kind,
		Frames:     s.Frames,
		AverageFPS: s.AverageFPS,
		Failures:   s.Failures,
		FirstFrame: s.FirstFrame,
		LastFrame:  s.LastFrame,
	}
}

func TransitionToCore(t model.Transition) core.Transition {
	return core.Transition{
		From:   t.FromState,
		To:     t.ToState,
		Detail: t.Detail,
		At:     t.Time,
	}
}

func ReservationEventToCore(e model.ReservationEvent) core.ReservationEvent {
	return core.ReservationEvent{
		Action:       core.ReservationAction(e.Action),
		ExperimentID: e.ExperimentID,
		Sender:       e.Sender,
		At:           e.Time,
	}
}
