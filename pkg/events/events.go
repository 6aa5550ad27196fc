// Package events defines the run lifecycle notifications published by the engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every journey event.
const Topic = "journey.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "journey.run.started"
	MessageSentEvent  EventType = "journey.message.sent"
	RunSuspendedEvent EventType = "journey.run.suspended"
	RunResumedEvent   EventType = "journey.run.resumed"
	RunCompletedEvent EventType = "journey.run.completed"
	RunFailedEvent    EventType = "journey.run.failed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	JourneyID string    `json:"journey_id"`
	RunID     string    `json:"run_id"`
}

// NewBaseEvent stamps a new event of eventType for a run.
func NewBaseEvent(eventType EventType, journeyID, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JourneyID: journeyID,
		RunID:     runID,
	}
}

type RunStarted struct {
	BaseEvent

	StartNodeID string `json:"start_node_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// MessageSent is the observable side effect of a message node.
type MessageSent struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Message string `json:"message"`
}

func (e MessageSent) GetType() EventType {
	return MessageSentEvent
}

type RunSuspended struct {
	BaseEvent

	NodeID       string    `json:"node_id"`
	DelaySeconds float64   `json:"delay_seconds"`
	ResumeAt     time.Time `json:"resume_at"`
}

func (e RunSuspended) GetType() EventType {
	return RunSuspendedEvent
}

type RunResumed struct {
	BaseEvent

	// NextNodeID is nil when the delay was the last step.
	NextNodeID *string `json:"next_node_id"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type RunCompleted struct {
	BaseEvent
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	NodeID *string `json:"node_id"`
	Error  string  `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}
