package telemetry

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/geo"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// mockClock returns a mock clock set to at; Add moves it forward.
func mockClock(at time.Time) *clock.Mock {
	c := clock.NewMock()
	c.Set(at)
	return c
}

type fakeSource struct {
	pose core.Pose
	fill byte
}

func (s *fakeSource) Pose(float32) core.Pose { return s.pose }

func (s *fakeSource) Matrices() (Matrix, Matrix) { return Identity(), Identity() }

func (s *fakeSource) FillPixels(_ Kind, buf []byte) error {
	for i := range buf {
		buf[i] = s.fill
	}
	return nil
}

type sinkFunc func(core.TelemetrySummary)

func (f sinkFunc) RecordTelemetry(s core.TelemetrySummary) { f(s) }

// receiver accepts one connection at a time and collects frames.
type receiver struct {
	ln     net.Listener
	frame  int
	mu     sync.Mutex
	frames [][]byte
}

func newReceiver(t *testing.T, frameBytes int) *receiver {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &receiver{ln: ln, frame: HeaderSize + frameBytes}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go r.read(conn)
		}
	}()
	return r
}

func (r *receiver) read(conn net.Conn) {
	defer conn.Close()
	for {
		buf := make([]byte, r.frame)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		r.mu.Lock()
		r.frames = append(r.frames, buf)
		r.mu.Unlock()
	}
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *receiver) port() int {
	return r.ln.Addr().(*net.TCPAddr).Port
}

func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		RetryWindow:  5 * time.Second,
		ByteOrder:    "big",
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func TestTransport_SendsFrames(t *testing.T) {
	rx := newReceiver(t, 16)
	bus := events.NewBus()
	fc := mockClock(epoch)
	src := &fakeSource{pose: core.Pose{X: 1, Y: 2, Z: 3}, fill: 0xab}
	agent := missioninit.AgentConnection{AgentIPAddress: "127.0.0.1", AgentVideoPort: rx.port()}
	track := geo.NewTrack(0)

	tr, err := New(agent, bus, src, testConfig(), WithClock(fc), WithTrack(track))
	require.NoError(t, err)
	require.NoError(t, tr.Start(KindVideo, 16))
	assert.Equal(t, 1, bus.Subscribers(events.TopicRenderEnd))
	require.Eventually(t, tr.Connected, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		bus.Publish(events.Event{Topic: events.TopicRenderStart})
		bus.Publish(events.Event{Topic: events.TopicRenderEnd})
		fc.Add(500 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rx.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	rx.mu.Lock()
	frame := rx.frames[0]
	rx.mu.Unlock()
	pose, _, _ := DecodeHeader(frame, binary.BigEndian)
	assert.Equal(t, src.pose, pose)
	assert.Equal(t, byte(0xab), frame[HeaderSize])
	assert.Equal(t, 3, track.Len())

	var summary core.TelemetrySummary
	require.NoError(t, tr.Stop(sinkFunc(func(s core.TelemetrySummary) { summary = s })))
	assert.Equal(t, "video", summary.Kind)
	assert.Equal(t, int64(3), summary.Frames)
	assert.Equal(t, 0, summary.Failures)
	// 3 frames over 1s between first and last
	assert.InDelta(t, 3.0, summary.AverageFPS, 1e-9)
	assert.Equal(t, 0, bus.Subscribers(events.TopicRenderEnd))
}

func TestTransport_BackoffSkipsWithinWindow(t *testing.T) {
	fc := mockClock(epoch)
	bus := events.NewBus()
	var dials atomic.Int32
	dialer := func(network, addr string, timeout time.Duration) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}
	agent := missioninit.AgentConnection{AgentIPAddress: "127.0.0.1", AgentDepthPort: 9}

	tr, err := New(agent, bus, &fakeSource{}, testConfig(), WithClock(fc), WithDialer(dialer))
	require.NoError(t, err)
	require.NoError(t, tr.Start(KindDepth, 4), "connect failure does not fail Start")
	require.Eventually(t, func() bool { return tr.Summary().Failures == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())

	// inside the window: nothing is attempted
	for i := 0; i < 10; i++ {
		tr.RenderEnd(events.Event{})
		fc.Add(100 * time.Millisecond)
	}
	assert.Equal(t, int32(1), dials.Load())

	// window elapsed: one more attempt, which fails and reopens the window
	fc.Add(4 * time.Second)
	tr.RenderEnd(events.Event{})
	require.Eventually(t, func() bool { return tr.Summary().Failures == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())

	tr.RenderEnd(events.Event{})
	assert.Equal(t, int32(2), dials.Load())

	var summary core.TelemetrySummary
	require.NoError(t, tr.Stop(sinkFunc(func(s core.TelemetrySummary) { summary = s })))
	assert.Equal(t, int64(0), summary.Frames)
	assert.Equal(t, 2, summary.Failures)
	assert.Equal(t, 0.0, summary.AverageFPS)
}

func TestTransport_SlowDialDoesNotBlockRenders(t *testing.T) {
	release := make(chan struct{})
	var dials atomic.Int32
	client, agentEnd := net.Pipe()
	defer agentEnd.Close()
	dialer := func(string, string, time.Duration) (net.Conn, error) {
		dials.Add(1)
		<-release
		return client, nil
	}
	agent := missioninit.AgentConnection{AgentIPAddress: "127.0.0.1", AgentVideoPort: 9}

	tr, err := New(agent, nil, &fakeSource{}, testConfig(), WithClock(mockClock(epoch)), WithDialer(dialer))
	require.NoError(t, err)

	begin := time.Now()
	require.NoError(t, tr.Start(KindVideo, 4))
	for i := 0; i < 5; i++ {
		tr.RenderStart(events.Event{})
		tr.RenderEnd(events.Event{})
	}
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	require.Eventually(t, func() bool { return dials.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, tr.Connected())
	assert.Equal(t, int64(0), tr.Summary().Frames, "frames are skipped while connecting")

	// a dial that completes after Stop is closed, not installed
	require.NoError(t, tr.Stop(nil))
	close(release)
	agentEnd.SetReadDeadline(time.Now().Add(time.Second))
	_, err = agentEnd.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, tr.Connected())
	assert.Equal(t, int32(1), dials.Load())
}

func TestTransport_RecoversAfterReceiverAppears(t *testing.T) {
	spare, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := spare.Addr().(*net.TCPAddr).Port
	spare.Close()

	fc := mockClock(epoch)
	cfg := testConfig()
	cfg.RetryWindow = time.Second
	agent := missioninit.AgentConnection{AgentIPAddress: "127.0.0.1", AgentLuminancePort: port}

	tr, err := New(agent, nil, &fakeSource{}, cfg, WithClock(fc))
	require.NoError(t, err)
	require.NoError(t, tr.Start(KindLuminance, 8))
	defer tr.Stop(nil)
	require.Eventually(t, func() bool { return tr.Summary().Failures == 1 }, 2*time.Second, 5*time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Skipf("port %d taken meanwhile: %v", port, err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			io.Copy(io.Discard, conn)
		}
	}()

	fc.Add(time.Second)
	tr.RenderEnd(events.Event{})
	require.Eventually(t, tr.Connected, 2*time.Second, 5*time.Millisecond)
	tr.RenderEnd(events.Event{})

	s := tr.Summary()
	assert.Equal(t, 0, s.Failures, "success resets the failure count")
	assert.Equal(t, int64(1), s.Frames)
}

func TestTransport_StartErrors(t *testing.T) {
	agent := missioninit.AgentConnection{AgentIPAddress: "127.0.0.1", AgentVideoPort: 1}
	noDial := WithDialer(func(string, string, time.Duration) (net.Conn, error) {
		return nil, errors.New("refused")
	})

	tr, err := New(agent, nil, &fakeSource{}, testConfig(), noDial)
	require.NoError(t, err)

	assert.ErrorIs(t, tr.Start(KindColourmap, 4), ErrNoPort)
	require.NoError(t, tr.Start(KindVideo, 4))
	assert.ErrorIs(t, tr.Start(KindVideo, 4), ErrAlreadyRunning)
	require.NoError(t, tr.Stop(nil))
	assert.ErrorIs(t, tr.Stop(nil), ErrNotRunning)
	assert.False(t, tr.IsRunning())
}

func TestTransport_BadByteOrder(t *testing.T) {
	cfg := testConfig()
	cfg.ByteOrder = "sideways"
	_, err := New(missioninit.AgentConnection{}, nil, &fakeSource{}, cfg)
	assert.Error(t, err)
}

func TestTransport_IgnoresRendersWhenStopped(t *testing.T) {
	src := &fakeSource{}
	tr, err := New(missioninit.AgentConnection{}, nil, src, testConfig())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		tr.RenderStart(events.Event{})
		tr.RenderEnd(events.Event{})
	})
	assert.Equal(t, int64(0), tr.Summary().Frames)
}
