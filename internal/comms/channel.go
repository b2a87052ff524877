package comms

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// outboxSize bounds the payloads waiting for the writer. Pings are sent
// once per interval, so a full outbox means the agent is not reading.
const outboxSize = 16

// Channel sends length-prefixed text to one fixed address. Dialing and
// writing happen on a writer goroutine, so SendText never waits on the
// network. A channel that failed once stays failed; callers discard it and
// create a new one.
type Channel struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
	dial    func(network, address string, timeout time.Duration) (net.Conn, error)

	outbox chan string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	broken bool
}

// NewChannel creates a channel to addr (host:port). timeout bounds both
// the dial and each write.
func NewChannel(addr string, timeout time.Duration, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		addr:    addr,
		timeout: timeout,
		logger:  logger,
		dial:    net.DialTimeout,
		outbox:  make(chan string, outboxSize),
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Addr returns the destination address.
func (c *Channel) Addr() string { return c.addr }

// SendText queues payload and reports whether the channel is still usable.
// A dial or write failure shows up as false on a later call. When the
// outbox is full the payload is dropped.
func (c *Channel) SendText(payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.broken {
		return false
	}
	select {
	case c.outbox <- payload:
	default:
		c.logger.Debug("Agent channel outbox full, dropping", "addr", c.addr)
	}
	return true
}

// Close stops accepting payloads. Queued payloads are still written, then
// the connection is closed. Close does not wait; see Done.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}

// Done is closed when the writer has finished and the connection is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) fail(what string, err error) {
	c.logger.Debug("Agent channel "+what+" failed", "addr", c.addr, "error", err)
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

func (c *Channel) writeLoop() {
	defer close(c.done)

	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	failed := false
	for payload := range c.outbox {
		if failed {
			continue
		}
		if conn == nil {
			dialed, err := c.dial("tcp", c.addr, c.timeout)
			if err != nil {
				c.fail("dial", err)
				failed = true
				continue
			}
			conn = dialed
		}
		if c.timeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(c.timeout))
		}
		if err := WriteFrame(conn, payload); err != nil {
			c.fail("send", err)
			failed = true
		}
	}
}
