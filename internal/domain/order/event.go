package order

import (
	"context"
	"time"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event announces a change of an order to downstream consumers.
type Event struct {
	Type EventType
	At   time.Time
	// Previous is the status before the change, empty for EventCreated.
	Previous Status
	Order    *Order
}

// Publisher delivers order events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}
