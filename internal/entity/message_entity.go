package entity

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleTool      = "tool"
	MessageRoleSystem    = "system"
)

// ToolCallRecord is a tool invocation requested by the assistant, persisted
// on the final assistant message for auditability.
type ToolCallRecord struct {
	CallId    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResultRecord is the settled outcome of a persisted tool call.
type ToolResultRecord struct {
	CallId string `json:"call_id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Message is immutable once committed; the orchestrator only ever appends.
type Message struct {
	Id             uuid.UUID          `json:"id"`
	ConversationId uuid.UUID          `json:"conversation_id"`
	Role           string             `json:"role"`
	Content        string             `json:"content"`
	TokenCount     int                `json:"token_count"`
	ToolCalls      []ToolCallRecord   `json:"tool_calls,omitempty"`
	ToolResults    []ToolResultRecord `json:"tool_results,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
