package main

import (
	"context"
	"time"

	"github.com/trueagi-io/Vereya-sub001/internal/events"
)

// tickDriver plays the host's game loop: one client tick followed by one
// rendered frame per interval.
type tickDriver struct {
	bus      *events.Bus
	interval time.Duration
}

func newTickDriver(bus *events.Bus, ticksPerSecond int) *tickDriver {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 20
	}
	return &tickDriver{bus: bus, interval: time.Second / time.Duration(ticksPerSecond)}
}

// Run publishes until ctx is done.
func (d *tickDriver) Run(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			d.step(now)
		}
	}
}

func (d *tickDriver) step(now time.Time) {
	d.bus.Publish(events.Event{Topic: events.TopicTick, Time: now})
	d.bus.Publish(events.Event{Topic: events.TopicRenderStart, Time: now})
	d.bus.Publish(events.Event{Topic: events.TopicRenderEnd, Time: now})
}
