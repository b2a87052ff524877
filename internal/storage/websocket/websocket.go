// Package websocket streams mission history to a dashboard over a
// WebSocket connection.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams history over WebSocket. It implements storage.Backend
// but not storage.Reader: nothing is kept locally.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		conn: newConnection(slog.Default().With("component", "history-stream")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope pushes the message to the write loop without waiting.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartMission announces the mission and waits for the server ack. The
// message is replayed after a reconnect until EndMission.
func (b *Backend) StartMission(r *core.MissionRecord) error {
	data, err := marshalEnvelope(streaming.TypeStartMission, streaming.NewStartMission(r))
	if err != nil {
		return err
	}
	b.conn.setReplay(data)
	return b.conn.sendAndWait(data, streaming.TypeStartMission, ackTimeout)
}

// EndMission sends end_mission and waits for server ack.
func (b *Backend) EndMission(r *core.MissionRecord) error {
	data, err := marshalEnvelope(streaming.TypeEndMission, streaming.NewEndMission(r))
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndMission, ackTimeout)
	b.conn.setReplay(nil)
	return err
}

func (b *Backend) RecordTransition(t *core.Transition) error {
	return b.sendEnvelope(streaming.TypeTransition, streaming.NewTransition(t))
}

func (b *Backend) RecordReservation(e *core.ReservationEvent) error {
	return b.sendEnvelope(streaming.TypeReservation, streaming.NewReservation(e))
}
