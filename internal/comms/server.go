// Package comms carries length-prefixed text commands between the client
// and its controlling agent.
package comms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/trueagi-io/Vereya-sub001/internal/config"
)

// ErrServerStopped is returned by Port when the server stopped before binding.
var ErrServerStopped = errors.New("command server stopped")

// Command is a kept inbound command.
type Command struct {
	Text   string
	Sender string
	At     time.Time
}

// Handler decides what to do with each inbound command.
type Handler interface {
	// OnCommand returns the reply to send ("" for none) and whether the
	// command should be kept for TakeCommand.
	OnCommand(text, sender string) (reply string, keep bool)
	// OnError receives protocol failures such as short reads.
	OnError(text string)
}

// Server listens for agent commands. Each connection carries one command
// and its reply. At most one kept command is held; a newer one replaces it.
type Server struct {
	cfg     config.CommandConfig
	handler Handler
	logger  *slog.Logger

	boundOnce sync.Once
	bound     chan struct{}
	port      int
	bindErr   error

	mu      sync.Mutex
	ln      net.Listener
	started bool
	stopped bool
	pending *Command

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(cfg config.CommandConfig, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "commands"),
		bound:   make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Start binds and serves in the background.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ln, err := s.bind()

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			if ln != nil {
				ln.Close()
			}
			s.markBound(0, ErrServerStopped)
			return
		}
		s.ln = ln
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("Failed to bind command port", "error", err)
			s.markBound(0, err)
			return
		}
		port := ln.Addr().(*net.TCPAddr).Port
		s.markBound(port, nil)
		s.logger.Info("Listening for commands", "port", port)

		s.acceptLoop(ln)
	}()
}

func (s *Server) markBound(port int, err error) {
	s.boundOnce.Do(func() {
		s.port = port
		s.bindErr = err
		close(s.bound)
	})
}

func (s *Server) bind() (net.Listener, error) {
	if s.cfg.ForcedPort > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ForcedPort))
		if err != nil {
			return nil, fmt.Errorf("bind forced port %d: %w", s.cfg.ForcedPort, err)
		}
		return ln, nil
	}
	for p := s.cfg.PortMin; p <= s.cfg.PortMax; p++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no free port in range %d-%d", s.cfg.PortMin, s.cfg.PortMax)
}

// Port blocks until the server is bound and returns the port.
func (s *Server) Port(ctx context.Context) (int, error) {
	select {
	case <-s.bound:
		return s.port, s.bindErr
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Error("Accept failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sender := conn.RemoteAddr().String()
	if s.cfg.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	text, err := ReadFrame(conn, s.cfg.MaxFrameBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// connected and left without sending anything
			return
		}
		s.handler.OnError(fmt.Sprintf("command from %s: %v", sender, err))
		return
	}

	reply, keep := s.handler.OnCommand(text, sender)
	if keep {
		s.mu.Lock()
		if s.pending != nil {
			s.logger.Debug("Replacing unconsumed command", "sender", s.pending.Sender)
		}
		s.pending = &Command{Text: text, Sender: sender, At: time.Now()}
		s.mu.Unlock()
	}
	if reply == "" {
		return
	}
	if err := WriteFrame(conn, reply); err != nil {
		s.logger.Debug("Reply not delivered", "sender", sender, "error", err)
	}
}

// TakeCommand returns and clears the kept command without blocking.
func (s *Server) TakeCommand() (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Command{}, false
	}
	c := *s.pending
	s.pending = nil
	return c, true
}

// ClearCommands discards the kept command.
func (s *Server) ClearCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Stop closes the listener and waits for in-flight connections. It must
// not be called from a Handler.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		ln := s.ln
		started := s.started
		s.mu.Unlock()

		close(s.quit)
		if ln != nil {
			ln.Close()
		}
		if !started {
			s.markBound(0, ErrServerStopped)
		}
	})
	s.wg.Wait()
}
