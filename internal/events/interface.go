package events

import (
	"context"
)

// EventBus defines the interface for the event bus system
type EventBus interface {
	// PublishAsync publishes an event without blocking. If the buffer is
	// full the event is dropped and counted; publishers never wait.
	PublishAsync(event Event) error

	// Subscribe subscribes to events matching the filter
	Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// GetStats returns event bus statistics
	GetStats() EventStats

	// Start starts the event bus
	Start(ctx context.Context) error

	// Stop stops the event bus gracefully
	Stop(ctx context.Context) error
}
