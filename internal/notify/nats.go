// Package notify delivers booking events to the message bus and milestone
// messages to customers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/spacall/internal/booking/domain"
)

// EventPublisher writes booking events to a NATS subject.
type EventPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewEventPublisher builds an EventPublisher using the provided NATS
// connection. A nil connection yields a no-op publisher.
func NewEventPublisher(conn *nats.Conn, subject string) *EventPublisher {
	return &EventPublisher{conn: conn, subject: subject}
}

// Publish satisfies domain.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-event-type": {string(event.Type)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
