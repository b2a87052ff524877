package comms

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
)

type stubHandler struct {
	mu     sync.Mutex
	reply  func(text string) (string, bool)
	errors []string
	seen   []string
}

func (h *stubHandler) OnCommand(text, sender string) (string, bool) {
	h.mu.Lock()
	h.seen = append(h.seen, text)
	h.mu.Unlock()
	if h.reply == nil {
		return "OK", true
	}
	return h.reply(text)
}

func (h *stubHandler) OnError(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, text)
}

func (h *stubHandler) errorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errors)
}

func anyPort() config.CommandConfig {
	return config.CommandConfig{MaxFrameBytes: 1024, ReadTimeout: 2 * time.Second}
}

func startServer(t *testing.T, cfg config.CommandConfig, h Handler) (*Server, int) {
	t.Helper()
	s := NewServer(cfg, h, nil)
	s.Start()
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	port, err := s.Port(ctx)
	require.NoError(t, err)
	return s, port
}

// send writes one command and returns the reply, or "" if the server
// closed the connection without replying.
func send(t *testing.T, port int, text string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, WriteFrame(conn, text))
	reply, err := ReadFrame(conn, 0)
	if err != nil {
		return ""
	}
	return reply
}

func TestServer_ReplyAndKeep(t *testing.T) {
	h := &stubHandler{}
	s, port := startServer(t, anyPort(), h)

	assert.Equal(t, "OK", send(t, port, "<MissionInit/>"))

	cmd, ok := s.TakeCommand()
	require.True(t, ok)
	assert.Equal(t, "<MissionInit/>", cmd.Text)
	assert.Contains(t, cmd.Sender, "127.0.0.1")

	_, ok = s.TakeCommand()
	assert.False(t, ok, "TakeCommand clears the slot")
}

func TestServer_LastWriteWins(t *testing.T) {
	h := &stubHandler{}
	s, port := startServer(t, anyPort(), h)

	send(t, port, "first")
	send(t, port, "second")

	cmd, ok := s.TakeCommand()
	require.True(t, ok)
	assert.Equal(t, "second", cmd.Text)
}

func TestServer_ClearCommands(t *testing.T) {
	h := &stubHandler{}
	s, port := startServer(t, anyPort(), h)

	send(t, port, "x")
	s.ClearCommands()
	_, ok := s.TakeCommand()
	assert.False(t, ok)
}

func TestServer_NoReplyNotKept(t *testing.T) {
	h := &stubHandler{reply: func(string) (string, bool) { return "", false }}
	s, port := startServer(t, anyPort(), h)

	assert.Equal(t, "", send(t, port, "garbage"))
	_, ok := s.TakeCommand()
	assert.False(t, ok)
}

func TestServer_OversizedFrameReportsError(t *testing.T) {
	h := &stubHandler{}
	cfg := anyPort()
	cfg.MaxFrameBytes = 8
	_, port := startServer(t, cfg, h)

	assert.Equal(t, "", send(t, port, "this is far too long"))
	assert.Eventually(t, func() bool { return h.errorCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, h.seen)
}

func TestServer_ShortReadReportsError(t *testing.T) {
	h := &stubHandler{}
	_, port := startServer(t, anyPort(), h)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, 10)
	_, err = conn.Write(append(hdr, 'a'))
	require.NoError(t, err)
	conn.Close()

	assert.Eventually(t, func() bool { return h.errorCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_ForcedPort(t *testing.T) {
	spare, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	free := spare.Addr().(*net.TCPAddr).Port
	spare.Close()

	cfg := anyPort()
	cfg.ForcedPort = free
	_, port := startServer(t, cfg, &stubHandler{})
	assert.Equal(t, free, port)
}

func TestServer_RangeExhausted(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	p := busy.Addr().(*net.TCPAddr).Port

	cfg := anyPort()
	cfg.PortMin, cfg.PortMax = p, p
	s := NewServer(cfg, &stubHandler{}, nil)
	s.Start()
	defer s.Stop()

	_, err = s.Port(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free port")
}

func TestServer_PortContextCancelled(t *testing.T) {
	s := NewServer(anyPort(), &stubHandler{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Port(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := NewServer(anyPort(), &stubHandler{}, nil)
	s.Stop()
	_, err := s.Port(context.Background())
	assert.ErrorIs(t, err, ErrServerStopped)
	s.Start() // no-op after stop
}

func TestServer_StopClosesListener(t *testing.T) {
	s := NewServer(anyPort(), &stubHandler{}, nil)
	s.Start()
	port, err := s.Port(context.Background())
	require.NoError(t, err)

	s.Stop()
	_, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	assert.Error(t, err)
}
