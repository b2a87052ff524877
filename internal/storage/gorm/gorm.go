// Package gormstorage writes mission history to SQL through gorm, on
// Postgres or SQLite.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/trueagi-io/Vereya-sub001/internal/database"
	"github.com/trueagi-io/Vereya-sub001/internal/model"
	"github.com/trueagi-io/Vereya-sub001/internal/model/convert"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"gorm.io/gorm"
)

// Mode selects the database the backend connects to.
type Mode int

const (
	// ModeSqlite uses the manager's SQLite file (or memory).
	ModeSqlite Mode = iota
	// ModePostgres uses Postgres and falls back to SQLite when unreachable.
	ModePostgres
)

var errNotInitialized = errors.New("gorm storage not initialized")

// Backend implements storage.Backend and storage.Reader.
type Backend struct {
	db      *database.Manager
	mode    Mode
	version string

	mu   sync.Mutex
	open map[string]uint // experiment id -> missions.id
}

// New creates a backend; Init connects and migrates.
func New(db *database.Manager, mode Mode, platformVersion string) *Backend {
	return &Backend{
		db:      db,
		mode:    mode,
		version: platformVersion,
		open:    make(map[string]uint),
	}
}

func (b *Backend) Init() error {
	var err error
	switch b.mode {
	case ModePostgres:
		err = b.db.Connect()
	default:
		err = b.db.ConnectSqlite()
	}
	if err != nil {
		return err
	}
	return b.db.Setup(b.version)
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) conn() (*gorm.DB, error) {
	if b.db == nil || b.db.DB == nil || !b.db.IsValid {
		return nil, errNotInitialized
	}
	return b.db.DB, nil
}

// StartMission inserts the mission row and remembers its id.
func (b *Backend) StartMission(r *core.MissionRecord) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	m := convert.CoreToMission(*r)
	m.Telemetry = nil
	if err := db.Create(&m).Error; err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}

	b.mu.Lock()
	b.open[r.ExperimentID] = m.ID
	b.mu.Unlock()
	return nil
}

// EndMission updates the row created by StartMission, or inserts one, and
// stores the telemetry summaries.
func (b *Backend) EndMission(r *core.MissionRecord) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	b.mu.Lock()
	id, ok := b.open[r.ExperimentID]
	delete(b.open, r.ExperimentID)
	b.mu.Unlock()

	m := convert.CoreToMission(*r)
	telemetry := m.Telemetry
	m.Telemetry = nil

	return db.Transaction(func(tx *gorm.DB) error {
		if ok {
			m.ID = id
			if err := tx.Save(&m).Error; err != nil {
				return fmt.Errorf("update mission: %w", err)
			}
		} else if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("insert mission: %w", err)
		}

		if len(telemetry) == 0 {
			return nil
		}
		for i := range telemetry {
			telemetry[i].MissionID = m.ID
		}
		if err := tx.Create(&telemetry).Error; err != nil {
			return fmt.Errorf("insert telemetry summaries: %w", err)
		}
		return nil
	})
}

func (b *Backend) RecordTransition(t *core.Transition) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	row := convert.CoreToTransition(*t)
	return db.Create(&row).Error
}

func (b *Backend) RecordReservation(e *core.ReservationEvent) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	row := convert.CoreToReservationEvent(*e)
	return db.Create(&row).Error
}

func (b *Backend) Missions() ([]core.MissionRecord, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var rows []model.Mission
	if err := db.Preload("Telemetry").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.MissionRecord, len(rows))
	for i, m := range rows {
		out[i] = convert.MissionToCore(m)
	}
	return out, nil
}

func (b *Backend) Transitions() ([]core.Transition, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var rows []model.Transition
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Transition, len(rows))
	for i, r := range rows {
		out[i] = convert.TransitionToCore(r)
	}
	return out, nil
}

func (b *Backend) Reservations() ([]core.ReservationEvent, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var rows []model.ReservationEvent
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.ReservationEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.ReservationEventToCore(r)
	}
	return out, nil
}
