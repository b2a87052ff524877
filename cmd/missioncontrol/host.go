package main

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/trueagi-io/Vereya-sub001/internal/telemetry"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

// hostConfig describes the simulated client.
type hostConfig struct {
	Width, Height int
	// WorldLoad is how long a new world takes to become ready.
	WorldLoad time.Duration
	// MissionLength ends every mission after this long. Zero runs until
	// the process stops.
	MissionLength time.Duration
	// ServerAddress and ServerPort are handed out by FIND_SERVER.
	ServerAddress string
	ServerPort    int
}

// simHost stands in for the game client: the world loads after a delay, the
// observer walks a circle and every mission ends after MissionLength.
type simHost struct {
	cfg    hostConfig
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	worldReadyAt time.Time
	worldLoaded  bool
	startedAt    time.Time
	running      bool
	frame        byte
}

func newSimHost(cfg hostConfig, clk clock.Clock, logger *slog.Logger) *simHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &simHost{cfg: cfg, clock: clk, logger: logger.With("component", "host")}
}

func (h *simHost) ModReady() bool { return true }

func (h *simHost) CreateHandlers(m *missioninit.MissionInit) error {
	h.logger.Debug("Creating mission handlers", "experiment", m.ExperimentID)
	return nil
}

func (h *simHost) NeedsNewWorld(*missioninit.MissionInit) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.worldLoaded
}

func (h *simHost) CreateWorld(*missioninit.MissionInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.worldLoaded = false
	h.worldReadyAt = h.clock.Now().Add(h.cfg.WorldLoad)
	return nil
}

func (h *simHost) WorldReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clock.Now().Before(h.worldReadyAt) {
		return false
	}
	h.worldLoaded = true
	return true
}

func (h *simHost) ServerReady(m *missioninit.MissionInit) (*missioninit.ServerConnection, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		h.running = true
		h.startedAt = h.clock.Now()
	}
	if m.Server.Known() {
		return m.Server, true, nil
	}
	return &missioninit.ServerConnection{Address: h.cfg.ServerAddress, Port: h.cfg.ServerPort}, true, nil
}

func (h *simHost) MissionOutcome() (core.Outcome, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running || h.cfg.MissionLength <= 0 {
		return "", "", false
	}
	if h.clock.Now().Sub(h.startedAt) < h.cfg.MissionLength {
		return "", "", false
	}
	return core.OutcomeEnded, "", true
}

func (h *simHost) TeardownMission() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
}

// FrameBytes uses 3 channels for colour kinds, 4 for depth (RGBD) and 1
// for luminance.
func (h *simHost) FrameBytes(kind telemetry.Kind) int {
	px := h.cfg.Width * h.cfg.Height
	switch kind {
	case telemetry.KindDepth:
		return px * 4
	case telemetry.KindLuminance:
		return px
	default:
		return px * 3
	}
}

func (h *simHost) Pose(partialTicks float32) core.Pose {
	h.mu.Lock()
	started := h.startedAt
	h.mu.Unlock()

	t := h.clock.Now().Sub(started).Seconds() + float64(partialTicks)/20
	return core.Pose{
		X:     float32(10 * math.Cos(t/10)),
		Y:     64,
		Z:     float32(10 * math.Sin(t/10)),
		Yaw:   float32(math.Mod(t*36, 360)),
		Pitch: 0,
	}
}

func (h *simHost) Matrices() (telemetry.Matrix, telemetry.Matrix) {
	return telemetry.Identity(), telemetry.Identity()
}

func (h *simHost) FillPixels(_ telemetry.Kind, buf []byte) error {
	h.mu.Lock()
	h.frame++
	v := h.frame
	h.mu.Unlock()
	for i := range buf {
		buf[i] = v + byte(i)
	}
	return nil
}
