package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Apply Event Types
// =============================================================================

// EventType classifies entries in a stack's apply history.
type EventType string

const (
	EventStackApplied   EventType = "stack_applied"
	EventStackStopped   EventType = "stack_stopped"
	EventStackDestroyed EventType = "stack_destroyed"

	EventContainerCreated   EventType = "container_created"
	EventContainerRecreated EventType = "container_recreated"
	EventContainerRemoved   EventType = "container_removed"

	EventDriftDetected EventType = "drift_detected"
	EventStackHealthy  EventType = "stack_healthy"
	EventStackDegraded EventType = "stack_degraded"
)

// Event is a single entry in a stack's apply history.
type Event struct {
	ID        string    `json:"id"`
	StackID   string    `json:"stack_id"`
	Type      EventType `json:"type"`
	Service   string    `json:"service,omitempty"` // empty for stack-level events
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent creates an apply-history event for a stack.
func NewEvent(stackID string, eventType EventType, service, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		StackID:   stackID,
		Type:      eventType,
		Service:   service,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// EventMessage generates a human-readable message for container-level events.
func EventMessage(eventType EventType, containerName string) string {
	switch eventType {
	case EventContainerCreated:
		return "Container " + containerName + " created"
	case EventContainerRecreated:
		return "Container " + containerName + " recreated with updated configuration"
	case EventContainerRemoved:
		return "Container " + containerName + " removed"
	case EventDriftDetected:
		return "Container " + containerName + " drifted from desired state"
	default:
		return "Container " + containerName + " event: " + string(eventType)
	}
}
