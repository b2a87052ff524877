package missioncontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/trueagi-io/Vereya-sub001/internal/comms"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/storage/memory"
	"github.com/trueagi-io/Vereya-sub001/internal/telemetry"
	"github.com/trueagi-io/Vereya-sub001/internal/worker"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

const testVersion = "0.1.0"

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// mockClock returns a mock clock set to at; Add moves it forward.
func mockClock(at time.Time) *clock.Mock {
	c := clock.NewMock()
	c.Set(at)
	return c
}

type fakeHost struct {
	mu sync.Mutex

	modReady    bool
	handlersErr error
	needsWorld  bool
	worldErr    error
	worldReady  bool
	server      *missioninit.ServerConnection
	serverReady bool
	serverErr   error

	outcome core.Outcome
	detail  string
	done    bool

	worldsCreated int
	teardowns     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		modReady:    true,
		worldReady:  true,
		serverReady: true,
		server:      &missioninit.ServerConnection{Address: "10.0.0.5", Port: 25565},
	}
}

func (h *fakeHost) set(f func(h *fakeHost)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f(h)
}

func (h *fakeHost) ModReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modReady
}

func (h *fakeHost) CreateHandlers(*missioninit.MissionInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handlersErr
}

func (h *fakeHost) NeedsNewWorld(*missioninit.MissionInit) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.needsWorld
}

func (h *fakeHost) CreateWorld(*missioninit.MissionInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.worldsCreated++
	return h.worldErr
}

func (h *fakeHost) WorldReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.worldReady
}

func (h *fakeHost) ServerReady(*missioninit.MissionInit) (*missioninit.ServerConnection, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.server, h.serverReady, h.serverErr
}

func (h *fakeHost) MissionOutcome() (core.Outcome, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.detail, h.done
}

func (h *fakeHost) FrameBytes(telemetry.Kind) int { return 16 }

func (h *fakeHost) TeardownMission() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teardowns++
	h.done = false
}

func (h *fakeHost) Pose(float32) core.Pose { return core.Pose{X: 1, Y: 64, Z: -3} }

func (h *fakeHost) Matrices() (telemetry.Matrix, telemetry.Matrix) {
	return telemetry.Identity(), telemetry.Identity()
}

func (h *fakeHost) FillPixels(_ telemetry.Kind, buf []byte) error {
	for i := range buf {
		buf[i] = 0x7f
	}
	return nil
}

// fakeAgent listens like an agent's mission control port and collects
// every frame it receives.
type fakeAgent struct {
	ln   net.Listener
	msgs chan string
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := &fakeAgent{ln: ln, msgs: make(chan string, 256)}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go a.read(conn)
		}
	}()
	return a
}

func (a *fakeAgent) read(conn net.Conn) {
	defer conn.Close()
	for {
		text, err := comms.ReadFrame(conn, 1<<20)
		if err != nil {
			return
		}
		select {
		case a.msgs <- text:
		default:
		}
	}
}

func (a *fakeAgent) port() int {
	return a.ln.Addr().(*net.TCPAddr).Port
}

// waitFor reads messages until one starts with prefix.
func (a *fakeAgent) waitFor(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-a.msgs:
			if strings.HasPrefix(m, prefix) {
				return m
			}
		case <-deadline:
			t.Fatalf("agent never received %q", prefix)
			return ""
		}
	}
}

// harness runs a controller on a fake clock with ticks published by hand.
type harness struct {
	t       *testing.T
	c       *Controller
	host    *fakeHost
	bus     *events.Bus
	clk     *clock.Mock
	backend *memory.Backend
	history *worker.Manager
	kills   chan struct{}
}

func testConfig() Config {
	return Config{
		Version: testVersion,
		Commands: config.CommandConfig{
			MaxFrameBytes: 1 << 20,
			ReadTimeout:   2 * time.Second,
		},
		Agent: config.AgentConfig{
			PingInterval: time.Second,
			SendTimeout:  time.Second,
		},
		Telemetry: config.TelemetryConfig{
			RetryWindow:  5 * time.Second,
			ByteOrder:    "big",
			DialTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Timeouts: config.TimeoutConfig{
			WorldCreate: 10 * time.Second,
			ServerReady: 10 * time.Second,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		host:    newFakeHost(),
		bus:     events.NewBus(),
		clk:     mockClock(epoch),
		backend: memory.New(),
		kills:   make(chan struct{}, 1),
	}
	require.NoError(t, h.backend.Init())
	h.history = worker.NewManager(worker.Dependencies{Backend: h.backend}, 0)
	h.history.Start()
	t.Cleanup(h.history.Stop)

	c, err := New(Dependencies{
		Host:    h.host,
		Bus:     h.bus,
		Clock:   h.clk,
		History: h.history,
		OnKill:  func() { h.kills <- struct{}{} },
	}, testConfig())
	require.NoError(t, err)
	h.c = c
	c.Start()
	t.Cleanup(c.Stop)
	return h
}

func (h *harness) tick() {
	h.bus.Publish(events.Event{Topic: events.TopicTick, Time: h.clk.Now()})
}

// tickUntil ticks until the stable state is want.
func (h *harness) tickUntil(want State) {
	h.t.Helper()
	for i := 0; i < 20; i++ {
		if h.c.StableState() == want {
			return
		}
		h.tick()
	}
	require.Equal(h.t, want, h.c.StableState())
}

func (h *harness) dormant() {
	h.t.Helper()
	h.tickUntil(Dormant)
}

func (h *harness) port() int {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	port, err := h.c.Port(ctx)
	require.NoError(h.t, err)
	return port
}

// command calls the handler directly, as the server would.
func (h *harness) command(text string) (string, bool) {
	return h.c.handler.OnCommand(text, "127.0.0.1:50000")
}

func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.history.Flush())
}

// send delivers text over loopback and returns the reply, or "" when the
// server closed the connection without one.
func send(t *testing.T, port int, text string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, comms.WriteFrame(conn, text))
	reply, err := comms.ReadFrame(conn, 1<<20)
	if errors.Is(err, io.EOF) {
		return ""
	}
	require.NoError(t, err)
	return reply
}

type missionOpt func(*missioninit.MissionInit)

func withVideo(port int) missionOpt {
	return func(m *missioninit.MissionInit) { m.Agent.AgentVideoPort = port }
}

func withVersion(v string) missionOpt {
	return func(m *missioninit.MissionInit) { m.PlatformVersion = v }
}

func missionXML(t *testing.T, experimentID string, agentPort int, opts ...missionOpt) string {
	t.Helper()
	m := &missioninit.MissionInit{
		PlatformVersion: testVersion,
		ExperimentID:    experimentID,
		Agent: missioninit.AgentConnection{
			AgentIPAddress:          "127.0.0.1",
			AgentMissionControlPort: agentPort,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	text, err := missioninit.Codec{}.Encode(m)
	require.NoError(t, err)
	return text
}
