package store

import (
	"time"

	"github.com/google/uuid"
)

// Passage is one retrieved chunk of supporting context, ordered by
// descending similarity score. Transient: never persisted directly, but may
// be recorded in message metadata for traceability.
type Passage struct {
	DocumentId uuid.UUID `json:"document_id"`
	ChunkId    uuid.UUID `json:"chunk_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
}

// ToolCallResult is the settled outcome of a single tool invocation.
// A failed call carries Error and an empty Output; failures are data, not
// turn-level faults.
type ToolCallResult struct {
	CallId  string        `json:"call_id"`
	Name    string        `json:"name"`
	Output  any           `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ms"`
}

// Failed reports whether the invocation settled with an error.
func (r ToolCallResult) Failed() bool {
	return r.Error != ""
}

// TurnState marks a conversation with an in-flight turn. Stored in the
// in-memory repository with a TTL matching the turn budget so a crashed
// turn cannot wedge its conversation.
type TurnState struct {
	ConversationId string    `json:"conversation_id"`
	UserId         string    `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
}
