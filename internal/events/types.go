// Package events provides the in-process event bus used to surface
// enrichment progress to a presentation layer. Delivery is fire-and-forget;
// the pipeline only publishes and never blocks on subscriber presence.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Enrichment events (per entity)
	EventEnrichmentStarted   EventType = "enrichment.started"
	EventEnrichmentProgress  EventType = "enrichment.progress"
	EventEnrichmentCompleted EventType = "enrichment.completed"
	EventEnrichmentError     EventType = "enrichment.error"

	// Batch sweep events
	EventBatchStarted   EventType = "enrichment.batch.started"
	EventBatchProgress  EventType = "enrichment.batch.progress"
	EventBatchCompleted EventType = "enrichment.batch.completed"

	// Conflict events
	EventConflictCreated  EventType = "conflict.created"
	EventConflictResolved EventType = "conflict.resolved"

	// Cache events
	EventCacheInvalidated EventType = "cache.invalidated"

	// Asset events
	EventAssetCreated EventType = "asset.created"
	EventAssetUpdated EventType = "asset.updated"
	EventAssetRemoved EventType = "asset.removed"

	// Maintenance events
	EventCleanupStarted   EventType = "maintenance.cleanup.started"
	EventCleanupCompleted EventType = "maintenance.cleanup.completed"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, module:<id>
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter restricts a subscription to matching events.
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	RecentEvents        []Event          `json:"recent_events"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
	DroppedEvents       int64            `json:"dropped_events"`
}

// NewSystemEvent creates an event originating from the core system.
func NewSystemEvent(eventType EventType, title, message string) Event {
	return Event{
		Type:      eventType,
		Source:    "system",
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewModuleEvent creates an event originating from a named module.
func NewModuleEvent(moduleID string, eventType EventType, title, message string) Event {
	return Event{
		Type:      eventType,
		Source:    "module:" + moduleID,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == event.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
