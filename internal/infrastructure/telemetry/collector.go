package telemetry

import (
	"context"

	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/domain/shared"
)

// EventCollector turns committed domain events into metric increments. It is
// an ordinary bus subscriber, so counting can never fail a command.
type EventCollector struct {
	metrics *Metrics
}

// NewEventCollector creates a collector over the given metrics
func NewEventCollector(metrics *Metrics) *EventCollector {
	return &EventCollector{metrics: metrics}
}

// Handle implements shared.EventHandler
func (c *EventCollector) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *session.SessionStartedEvent:
		c.metrics.SessionsStarted.Inc()
	case *session.SessionEndedEvent:
		c.metrics.SessionsEnded.WithLabelValues(string(e.Reason)).Inc()
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (c *EventCollector) EventTypes() []string {
	return []string{"SessionStarted", "SessionEnded"}
}

// Ensure EventCollector implements EventHandler
var _ shared.EventHandler = (*EventCollector)(nil)
