// Package mission holds the MissionInit the client is currently working on.
package mission

import (
	"sync"

	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

// Context holds the single current MissionInit. It is replaced as a whole
// when a new mission is accepted.
type Context struct {
	mu      sync.RWMutex
	current *missioninit.MissionInit
	text    string
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{}
}

// Current returns the current MissionInit, or nil.
func (c *Context) Current() *missioninit.MissionInit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Document returns the text the current MissionInit was decoded from.
func (c *Context) Document() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Set replaces the current MissionInit and its source text.
func (c *Context) Set(m *missioninit.MissionInit, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = m
	c.text = text
}

// Clear drops the current MissionInit.
func (c *Context) Clear() {
	c.Set(nil, "")
}

// ExperimentID returns the current experiment id, or "" when idle.
func (c *Context) ExperimentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.ExperimentID
}
