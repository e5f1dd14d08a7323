package mapper

import (
	"encoding/json"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/model"

	"gorm.io/datatypes"
)

type MessageMapper struct{}

func NewMessageMapper() *MessageMapper {
	return &MessageMapper{}
}

func (m *MessageMapper) ToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	var toolCalls []entity.ToolCallRecord
	if len(msg.ToolCalls) > 0 {
		// Corrupt rows lose the audit trail but never fail a read
		_ = json.Unmarshal(msg.ToolCalls, &toolCalls)
	}
	var toolResults []entity.ToolResultRecord
	if len(msg.ToolResults) > 0 {
		_ = json.Unmarshal(msg.ToolResults, &toolResults)
	}

	return &entity.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokenCount:     msg.TokenCount,
		ToolCalls:      toolCalls,
		ToolResults:    toolResults,
		Metadata:       map[string]any(msg.Metadata),
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *MessageMapper) ToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	var toolCalls datatypes.JSON
	if len(msg.ToolCalls) > 0 {
		if raw, err := json.Marshal(msg.ToolCalls); err == nil {
			toolCalls = raw
		}
	}
	var toolResults datatypes.JSON
	if len(msg.ToolResults) > 0 {
		if raw, err := json.Marshal(msg.ToolResults); err == nil {
			toolResults = raw
		}
	}

	return &model.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokenCount:     msg.TokenCount,
		ToolCalls:      toolCalls,
		ToolResults:    toolResults,
		Metadata:       datatypes.JSONMap(msg.Metadata),
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *MessageMapper) ToEntities(messages []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(messages))
	for i, msg := range messages {
		entities[i] = m.ToEntity(msg)
	}
	return entities
}
