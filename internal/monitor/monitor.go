package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/trueagi-io/Vereya-sub001/internal/mission"
	"github.com/trueagi-io/Vereya-sub001/internal/reservation"
	"github.com/trueagi-io/Vereya-sub001/internal/statemachine"
	"github.com/trueagi-io/Vereya-sub001/internal/worker"
)

// MeasurementStatus is the influx measurement written every interval.
const MeasurementStatus = "client_status"

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// StatusSource is what the monitor reports on. *missioncontrol.Controller
// implements it.
type StatusSource interface {
	StableState() statemachine.State
	Reservation() *reservation.Reservation
	Mission() *mission.Context
}

// PointWriter receives one status point per interval.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source  StatusSource
	History *worker.Manager
	Logger  *slog.Logger
	// StatusPath is rewritten every interval. Empty disables the file.
	StatusPath string
	// Influx is optional.
	Influx   PointWriter
	Interval time.Duration
}

// Status is one snapshot of the client.
type Status struct {
	Time                time.Time `json:"time"`
	State               string    `json:"state"`
	Experiment          string    `json:"experiment,omitempty"`
	ReservedFor         string    `json:"reservedFor,omitempty"`
	HistoryPending      int       `json:"historyPending"`
	HistoryFailures     int64     `json:"historyFailures"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status and its rendering for the
// status file.
func (s *Service) GetProgramStatus() (output []string, status Status) {
	status = Status{
		Time:        time.Now(),
		State:       string(s.deps.Source.StableState()),
		Experiment:  s.deps.Source.Mission().ExperimentID(),
		ReservedFor: s.deps.Source.Reservation().ExperimentID(),
	}
	if h := s.deps.History; h != nil {
		status.HistoryPending = h.Pending()
		status.HistoryFailures = h.Failures()
		status.LastWriteDurationMs = float32(h.LastWriteDuration().Microseconds()) / 1000
	}

	statusStr, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(statusStr))
	return output, status
}

func statusPoint(st Status) *influxdb2_write.Point {
	tags := map[string]string{"state": st.State}
	if st.Experiment != "" {
		tags["experiment"] = st.Experiment
	}
	return influxdb2_write.NewPoint(MeasurementStatus, tags,
		map[string]any{
			"reserved":               st.ReservedFor != "",
			"history_pending":        st.HistoryPending,
			"history_failures":       st.HistoryFailures,
			"last_write_duration_ms": st.LastWriteDurationMs,
		},
		st.Time,
	)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		var statusFile *os.File
		if s.deps.StatusPath != "" {
			var err error
			statusFile, err = os.Create(s.deps.StatusPath)
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lines, status := s.GetProgramStatus()

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range lines {
						statusFile.WriteString(line + "\n")
					}
				}

				if s.deps.Influx != nil {
					if err := s.deps.Influx.WritePoint(statusPoint(status)); err != nil {
						logger.Error("Error writing status point", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
