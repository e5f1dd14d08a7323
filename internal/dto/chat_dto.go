package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type CreateConversationResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllConversationsResponse struct {
	Id           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

type GetHistoryResponse struct {
	Id          uuid.UUID       `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   []ToolCallDTO   `json:"tool_calls,omitempty"`
	ToolResults []ToolResultDTO `json:"tool_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ToolCallDTO struct {
	CallId    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ToolResultDTO struct {
	CallId string `json:"call_id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type SendTurnRequest struct {
	ConversationId *uuid.UUID  `json:"conversation_id,omitempty"`
	Title          string      `json:"title,omitempty"` // used only when a conversation is created
	Message        string      `json:"message" validate:"required"`
	UseRetrieval   *bool       `json:"use_rag,omitempty"`
	UseTools       *bool       `json:"use_tools,omitempty"`
	DocumentScope  []uuid.UUID `json:"document_scope,omitempty"`
	Model          string      `json:"model,omitempty"`
	Temperature    *float64    `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
}

type DeleteConversationRequest struct {
	ConversationId uuid.UUID `json:"conversation_id"`
}
