// Package convert maps mission history records between pkg/core and the
// gorm models.
package convert

import (
	"encoding/json"

	"github.com/trueagi-io/Vereya-sub001/internal/geo"
	"github.com/trueagi-io/Vereya-sub001/internal/model"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
	"gorm.io/datatypes"
)

// settingsJSON renders the MissionInit document as JSON for querying. A
// document that does not decode yields "{}".
func settingsJSON(document string) datatypes.JSON {
	if document == "" {
		return datatypes.JSON("{}")
	}
	mi, err := missioninit.Codec{}.Decode(document)
	if err != nil {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(mi)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// CoreToMission converts a core.MissionRecord to a gorm model.
func CoreToMission(r core.MissionRecord) model.Mission {
	m := model.Mission{
		ExperimentID: r.ExperimentID,
		Role:         r.Role,
		Agent:        r.Agent,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		Outcome:      string(r.Outcome),
		Detail:       r.Detail,
		Document:     r.Document,
		Settings:     settingsJSON(r.Document),
		Track:        geo.PosesToLineString(r.Track),
	}
	m.Distance = m.Track.Length()
	for _, s := range r.Telemetry {
		m.Telemetry = append(m.Telemetry, CoreToTelemetrySummary(s))
	}
	return m
}

func CoreToTelemetrySummary(s core.TelemetrySummary) model.TelemetrySummary {
	return model.TelemetrySummary{
		Kind:       s.Kind,
		Frames:     s.Frames,
		AverageFPS: s.AverageFPS,
		Failures:   s.Failures,
		FirstFrame: s.FirstFrame,
		LastFrame:  s.LastFrame,
	}
}

func CoreToTransition(t core.Transition) model.Transition {
	return model.Transition{
		Time:      t.At,
		FromState: t.From,
		ToState:   t.To,
		Detail:    t.Detail,
	}
}

func CoreToReservationEvent(e core.ReservationEvent) model.ReservationEvent {
	return model.ReservationEvent{
		Time:         e.At,
		Action:       string(e.Action),
		ExperimentID: e.ExperimentID,
		Sender:       e.Sender,
	}
}
