// Package exit implements the bounded process exit requested by KILL.
package exit

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ForcedExitCode is passed to the terminate func when the grace period
// runs out.
const ForcedExitCode = 1

// Controller runs a graceful shutdown once and force-terminates the process
// if the shutdown has not finished within the grace period.
type Controller struct {
	clock     clock.Clock
	grace     time.Duration
	shutdown  func()
	terminate func(code int)
	logger    *slog.Logger

	once  sync.Once
	mu    sync.Mutex
	timer *clock.Timer
	done  chan struct{}
}

// New creates a controller. A nil terminate defaults to os.Exit.
func New(clk clock.Clock, grace time.Duration, shutdown func(), terminate func(code int)) *Controller {
	if terminate == nil {
		terminate = os.Exit
	}
	return &Controller{
		clock:     clk,
		grace:     grace,
		shutdown:  shutdown,
		terminate: terminate,
		logger:    slog.Default().With("component", "exit"),
		done:      make(chan struct{}),
	}
}

// Request starts the shutdown in its own goroutine and arms the grace
// timer. Only the first call has any effect. It never blocks, so it may be
// called from a command handler.
func (c *Controller) Request() {
	c.once.Do(func() {
		c.logger.Info("Exit requested", "grace", c.grace)

		c.mu.Lock()
		c.timer = c.clock.AfterFunc(c.grace, func() {
			c.logger.Error("Graceful exit did not finish in time, terminating", "grace", c.grace)
			c.terminate(ForcedExitCode)
		})
		c.mu.Unlock()

		go func() {
			if c.shutdown != nil {
				c.shutdown()
			}
			c.mu.Lock()
			c.timer.Stop()
			c.mu.Unlock()
			close(c.done)
		}()
	})
}

// Done is closed once the graceful shutdown has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
