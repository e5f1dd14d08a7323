package turn

import (
	"context"
	"errors"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

// TurnCommit is the atomic append finishing a turn: the user and assistant
// messages, plus the conversation row itself when the turn created it.
// MessageCount and UpdatedAt on Conversation are bumped by the store.
type TurnCommit struct {
	Conversation       *entity.Conversation
	CreateConversation bool
	UserMessage        *entity.Message
	AssistantMessage   *entity.Message
}

// ContextStore is the durable conversation record. Reads happen before the
// loop starts; the single write happens only after the turn fully resolves.
// CommitTurn must serialize commits targeting the same conversation.
type ContextStore interface {
	// GetConversation returns ErrConversationNotFound when the id does not
	// resolve to a live conversation owned by the user.
	GetConversation(ctx context.Context, userId, conversationId uuid.UUID) (*entity.Conversation, error)
	History(ctx context.Context, conversationId uuid.UUID) ([]*entity.Message, error)
	CommitTurn(ctx context.Context, commit *TurnCommit) error
}
