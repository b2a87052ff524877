// Package dispatcher routes inbound text commands to handlers by prefix.
// Routes are tried in registration order and the first match wins.
package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrNoRoute is returned by Dispatch when no route and no fallback match.
var ErrNoRoute = errors.New("no route for command")

// Event is one inbound command.
type Event struct {
	Text      string
	Sender    string
	Timestamp time.Time
}

// Args returns the part of Text following the matched prefix.
func (e Event) Args(prefix string) string {
	return strings.TrimPrefix(e.Text, prefix)
}

// Result is what a handler wants done with a command.
type Result struct {
	// Reply is written back to the sender. Empty means close without replying.
	Reply string
	// Keep stores the command for the active episode to pick up.
	Keep bool
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) (Result, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route.
type Option func(*routeConfig)

type routeConfig struct {
	exact  bool
	logged bool
}

// Exact makes the route match only the whole command text.
func Exact() Option {
	return func(c *routeConfig) {
		c.exact = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *routeConfig) {
		c.logged = true
	}
}

type route struct {
	name    string
	prefix  string
	exact   bool
	handler HandlerFunc
}

func (r route) matches(text string) bool {
	if r.exact {
		return text == r.prefix
	}
	return strings.HasPrefix(text, r.prefix)
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   []route
	fallback *route
	logger   Logger
	counters counters
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	c, err := newCounters()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{logger: logger, counters: c}, nil
}

// Register appends a route for commands starting with prefix.
func (d *Dispatcher) Register(prefix string, h HandlerFunc, opts ...Option) {
	cfg := &routeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := route{name: prefix, prefix: prefix, exact: cfg.exact, handler: h}
	if cfg.logged {
		r.handler = d.withLogging(prefix, h)
	}

	d.mu.Lock()
	d.routes = append(d.routes, r)
	d.mu.Unlock()
}

// Fallback sets the handler for commands that match no route.
func (d *Dispatcher) Fallback(name string, h HandlerFunc, opts ...Option) {
	cfg := &routeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	r := route{name: name, handler: h}
	if cfg.logged {
		r.handler = d.withLogging(name, h)
	}

	d.mu.Lock()
	d.fallback = &r
	d.mu.Unlock()
}

// Dispatch runs the first route matching e.Text, or the fallback.
func (d *Dispatcher) Dispatch(e Event) (Result, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	var matched *route
	for i := range d.routes {
		if d.routes[i].matches(e.Text) {
			matched = &d.routes[i]
			break
		}
	}
	if matched == nil {
		matched = d.fallback
	}
	d.mu.RUnlock()

	if matched == nil {
		d.counters.missed()
		return Result{}, fmt.Errorf("%w: %q", ErrNoRoute, truncate(e.Text, 32))
	}

	res, err := matched.handler(e)
	d.counters.handled(matched.name)
	return res, err
}

// HasRoute reports whether a route is registered under prefix.
func (d *Dispatcher) HasRoute(prefix string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if r.prefix == prefix {
			return true
		}
	}
	return false
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e Event) (Result, error) {
		start := time.Now()
		d.logger.Debug("handling command", "route", name, "sender", e.Sender)

		res, err := h(e)

		if err != nil {
			d.logger.Error("command failed", "route", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command complete", "route", name, "reply", res.Reply, "keep", res.Keep, "duration", time.Since(start))
		}
		return res, err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
