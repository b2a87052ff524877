// Package events is the process-owned pub/sub bus that carries host
// callbacks (client ticks, render start/end, world loads) to whichever
// components subscribed to them.
package events

import (
	"sync"
	"time"
)

// Topic identifies a kind of host callback.
type Topic string

const (
	TopicTick        Topic = "tick"
	TopicRenderStart Topic = "render.start"
	TopicRenderEnd   Topic = "render.end"
	TopicWorldLoad   Topic = "world.load"
)

// Event is one host callback.
type Event struct {
	Topic Topic
	Time  time.Time

	// PartialTicks is the render interpolation factor; zero for ticks.
	PartialTicks float32

	// World names the loaded world for TopicWorldLoad.
	World string
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers. Handlers run on the publisher's
// goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a function that removes it.
// The returned function is idempotent.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every handler subscribed to e.Topic. Handlers may
// subscribe or unsubscribe while being called; changes take effect on the
// next Publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Topic]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
