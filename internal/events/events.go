// Package events publishes order lifecycle notifications.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrderDeleted       = "order.deleted"
)

// Event is the envelope written to the lifecycle topic.
type Event struct {
	EventID    uuid.UUID      `json:"eventId"`
	Type       string         `json:"type"`
	OrderID    uuid.UUID      `json:"orderId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(eventType string, orderID uuid.UUID, payload map[string]any) Event {
	return Event{
		EventID:    uuid.New(),
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every event.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close() error                        { return nil }
