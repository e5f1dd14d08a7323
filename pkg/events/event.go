package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "conversation.turn_committed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewConversationTurnCommitted marks one fully committed turn.
func NewConversationTurnCommitted(conversationId, userId, messageId uuid.UUID) Event {
	return BaseEvent{
		Type: "conversation.turn_committed",
		Data: map[string]interface{}{
			"conversation_id": conversationId.String(),
			"user_id":         userId.String(),
			"message_id":      messageId.String(),
		},
		OccurredAt: time.Now(),
	}
}

// NewDocumentCreated marks a freshly ingested document awaiting indexing.
func NewDocumentCreated(documentId, userId uuid.UUID) Event {
	return BaseEvent{
		Type: "document.created",
		Data: map[string]interface{}{
			"document_id": documentId.String(),
			"user_id":     userId.String(),
		},
		OccurredAt: time.Now(),
	}
}
