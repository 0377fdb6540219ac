// Package pubsub provides a generic publish/subscribe event system used to
// stream scope membership changes and log entries to observers.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// CreatedEvent carries newly written items such as log entries.
	CreatedEvent EventType = "created"

	// RegisteredEvent is published when a component joins a scope.
	RegisteredEvent EventType = "registered"
	// UnregisteredEvent is published when a component leaves a scope.
	UnregisteredEvent EventType = "unregistered"
	// RefusedEvent is published when a removal is refused because a strict
	// dependency still holds the component.
	RefusedEvent EventType = "refused"
	// ClearedEvent is published when a scope drops all of its components.
	ClearedEvent EventType = "cleared"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Drain collects everything currently buffered on ch without blocking.
func Drain[T any](ch <-chan Event[T]) []Event[T] {
	var out []Event[T]
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
