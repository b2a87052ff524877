// Package telemetry streams rendered frames with pose metadata to the
// agent. Sending is best effort: a frame that cannot be sent is dropped
// and the transport backs off before trying again.
package telemetry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/events"
	"github.com/trueagi-io/Vereya-sub001/internal/geo"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/trueagi-io/Vereya-sub001/internal/telemetry"

var (
	ErrNotRunning     = errors.New("telemetry transport not running")
	ErrAlreadyRunning = errors.New("telemetry transport already running")
	ErrNoPort         = errors.New("agent has no port for this kind")
)

// Source is the host side of a transport: where the observer is, how the
// scene is projected, and the pixels of the current frame.
type Source interface {
	Pose(partialTicks float32) core.Pose
	Matrices() (modelView, projection Matrix)
	// FillPixels writes the frame for kind into buf, which is exactly the
	// size negotiated at Start.
	FillPixels(kind Kind, buf []byte) error
}

// Sink receives the summary written when a transport stops.
type Sink interface {
	RecordTelemetry(core.TelemetrySummary)
}

// Dialer opens the connection to the agent.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Option configures a Transport.
type Option func(*Transport)

func WithClock(c clock.Clock) Option { return func(t *Transport) { t.clock = c } }

func WithDialer(d Dialer) Option { return func(t *Transport) { t.dial = d } }

// WithTrack records each rendered pose into tr, subject to its interval.
func WithTrack(tr *geo.Track) Option { return func(t *Transport) { t.track = tr } }

func WithLogger(l *slog.Logger) Option { return func(t *Transport) { t.logger = l } }

// Transport sends one frame per render while running.
type Transport struct {
	agent  missioninit.AgentConnection
	bus    *events.Bus
	source Source
	cfg    config.TelemetryConfig
	order  binary.ByteOrder

	clock  clock.Clock
	dial   Dialer
	track  *geo.Track
	logger *slog.Logger

	sent    metric.Int64Counter
	failed  metric.Int64Counter
	skipped metric.Int64Counter

	mu      sync.Mutex
	running bool
	kind    Kind
	addr    string
	header  []byte
	pixels  []byte
	conn    net.Conn
	unsubs  []func()
	pose    core.Pose

	// gen changes on every Start and Stop so a dial that finishes late
	// cannot install its connection into a later run.
	gen     uint64
	dialing bool

	failures     int
	nextEligible time.Time
	frames       int64
	first, last  time.Time
}

// New creates a stopped transport to agent.
func New(agent missioninit.AgentConnection, bus *events.Bus, source Source, cfg config.TelemetryConfig, opts ...Option) (*Transport, error) {
	order, err := ParseByteOrder(cfg.ByteOrder)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		agent:  agent,
		bus:    bus,
		source: source,
		cfg:    cfg,
		order:  order,
		clock:  clock.New(),
		dial:   net.DialTimeout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	m := otel.Meter(instrumentationName)
	if t.sent, err = m.Int64Counter("telemetry.frames.sent"); err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	if t.failed, err = m.Int64Counter("telemetry.frames.failed"); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if t.skipped, err = m.Int64Counter("telemetry.frames.skipped"); err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	return t, nil
}

// Start allocates the frame buffers, begins connecting to the agent port
// for kind and subscribes to render callbacks. The dial runs in the
// background; a failed dial does not fail Start, it counts as a send
// failure and is retried after the backoff.
func (t *Transport) Start(kind Kind, sizeHint int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}
	port := PortFor(kind, t.agent)
	if port <= 0 {
		return fmt.Errorf("%w: %s", ErrNoPort, kind)
	}
	if sizeHint < 0 {
		sizeHint = 0
	}

	t.kind = kind
	t.addr = net.JoinHostPort(t.agent.AgentIPAddress, strconv.Itoa(port))
	t.header = make([]byte, HeaderSize)
	t.pixels = make([]byte, sizeHint)
	t.failures, t.frames = 0, 0
	t.first, t.last, t.nextEligible = time.Time{}, time.Time{}, time.Time{}
	t.gen++
	t.dialing = false
	t.connectLocked()

	if t.bus != nil {
		t.unsubs = append(t.unsubs,
			t.bus.Subscribe(events.TopicRenderStart, t.RenderStart),
			t.bus.Subscribe(events.TopicRenderEnd, t.RenderEnd),
		)
	}
	t.running = true
	t.logger.Info("Telemetry started", "kind", kind, "addr", t.addr, "frameBytes", sizeHint)
	return nil
}

// RenderStart snapshots the pose for the frame about to be rendered.
func (t *Transport) RenderStart(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.pose = t.source.Pose(e.PartialTicks)
	if t.track != nil {
		t.track.Add(t.clock.Now(), t.pose)
	}
}

// RenderEnd sends the frame. It never waits for a dial: while the
// transport is backing off or still connecting the frame is skipped.
func (t *Transport) RenderEnd(events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}

	ctx := context.Background()
	kindAttr := metric.WithAttributes(attribute.String("kind", string(t.kind)))
	now := t.clock.Now()

	if t.failures > 0 && now.Before(t.nextEligible) {
		t.skipped.Add(ctx, 1, kindAttr)
		return
	}

	if t.conn == nil {
		t.connectLocked()
		t.skipped.Add(ctx, 1, kindAttr)
		return
	}

	mv, proj := t.source.Matrices()
	EncodeHeader(t.header, t.order, t.pose, mv, proj)
	if err := t.source.FillPixels(t.kind, t.pixels); err != nil {
		t.logger.Debug("Frame not captured", "kind", t.kind, "error", err)
		return
	}

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	bufs := net.Buffers{t.header, t.pixels}
	if _, err := bufs.WriteTo(t.conn); err != nil {
		t.failLocked(now, err)
		t.failed.Add(ctx, 1, kindAttr)
		return
	}

	t.failures = 0
	t.frames++
	if t.first.IsZero() {
		t.first = now
	}
	t.last = now
	t.sent.Add(ctx, 1, kindAttr)
}

// connectLocked starts a background dial unless one is already running.
func (t *Transport) connectLocked() {
	if t.dialing {
		return
	}
	t.dialing = true
	gen, addr := t.gen, t.addr
	go func() {
		conn, err := t.dial("tcp", addr, t.cfg.DialTimeout)
		t.dialed(gen, conn, err)
	}()
}

func (t *Transport) dialed(gen uint64, conn net.Conn, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.running {
		if conn != nil {
			conn.Close()
		}
		return
	}
	t.dialing = false
	if err != nil {
		t.failLocked(t.clock.Now(), err)
		t.failed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(t.kind))))
		return
	}
	t.conn = conn
	t.logger.Debug("Telemetry connected", "kind", t.kind, "addr", t.addr)
}

// failLocked drops the connection and opens the backoff window. The next
// attempt after the window dials a fresh connection.
func (t *Transport) failLocked(now time.Time, err error) {
	t.failures++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.nextEligible = now.Add(t.cfg.RetryWindow)
	t.logger.Debug("Telemetry send failed", "kind", t.kind, "failures", t.failures, "retryAt", t.nextEligible, "error", err)
}

// Stop closes the connection, unsubscribes and writes a summary to sink
// when it is non-nil.
func (t *Transport) Stop(sink Sink) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.running = false
	t.gen++
	t.dialing = false
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	unsubs := t.unsubs
	t.unsubs = nil
	summary := t.summaryLocked()
	t.mu.Unlock()

	// outside the lock: the bus may be delivering to us right now
	for _, u := range unsubs {
		u()
	}

	t.logger.Info("Telemetry stopped", "kind", summary.Kind, "frames", summary.Frames, "fps", summary.AverageFPS, "failures", summary.Failures)
	if sink != nil {
		sink.RecordTelemetry(summary)
	}
	return nil
}

// Summary returns the counters so far.
func (t *Transport) Summary() core.TelemetrySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summaryLocked()
}

func (t *Transport) summaryLocked() core.TelemetrySummary {
	s := core.TelemetrySummary{
		Kind:       string(t.kind),
		Frames:     t.frames,
		Failures:   t.failures,
		FirstFrame: t.first,
		LastFrame:  t.last,
	}
	if elapsed := t.last.Sub(t.first).Seconds(); elapsed > 0 {
		s.AverageFPS = float64(t.frames) / elapsed
	}
	return s
}

// Connected reports whether a connection to the agent is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (t *Transport) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
