package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/trueagi-io/Vereya-sub001/internal/dispatcher"

// counters count routed commands per route name and commands no route took.
// They report to the global meter, which is a no-op until a provider is set.
type counters struct {
	processed metric.Int64Counter
	unmatched metric.Int64Counter
}

func newCounters() (counters, error) {
	m := otel.Meter(instrumentationName)

	processed, err := m.Int64Counter(
		"dispatcher.commands.processed",
		metric.WithDescription("Total commands handled"),
	)
	if err != nil {
		return counters{}, fmt.Errorf("creating processed counter: %w", err)
	}
	unmatched, err := m.Int64Counter(
		"dispatcher.commands.unmatched",
		metric.WithDescription("Total commands with no matching route"),
	)
	if err != nil {
		return counters{}, fmt.Errorf("creating unmatched counter: %w", err)
	}
	return counters{processed: processed, unmatched: unmatched}, nil
}

func (c counters) handled(route string) {
	c.processed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("route", route)))
}

func (c counters) missed() {
	c.unmatched.Add(context.Background(), 1)
}
