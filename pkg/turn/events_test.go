package turn

import (
	"encoding/json"
	"strings"
	"testing"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFrame(t *testing.T, event Event) map[string]any {
	t.Helper()
	raw, err := event.Frame()
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(raw), "\n"), "frame must be newline terminated")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestFrameShapes(t *testing.T) {
	t.Run("start and end carry only the type", func(t *testing.T) {
		for _, event := range []Event{StartEvent(), EndEvent()} {
			decoded := decodeFrame(t, event)
			assert.Len(t, decoded, 1)
			assert.Equal(t, string(event.Type), decoded["type"])
		}
	})

	t.Run("content", func(t *testing.T) {
		decoded := decodeFrame(t, ContentEvent("partial text"))
		assert.Equal(t, "content", decoded["type"])
		assert.Equal(t, "partial text", decoded["content"])
	})

	t.Run("tool_call", func(t *testing.T) {
		decoded := decodeFrame(t, ToolCallEvent("calculator", map[string]any{"value": 4}))
		assert.Equal(t, "tool_call", decoded["type"])
		assert.Equal(t, "calculator", decoded["tool"])
		result, ok := decoded["result"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 4, result["value"])
	})

	t.Run("error", func(t *testing.T) {
		decoded := decodeFrame(t, ErrorEvent("turn cancelled"))
		assert.Equal(t, "error", decoded["type"])
		assert.Equal(t, "turn cancelled", decoded["error"])
	})

	t.Run("complete", func(t *testing.T) {
		conversation := &entity.Conversation{Id: uuid.New(), Title: "Chat"}
		message := &entity.Message{Id: uuid.New(), Role: entity.MessageRoleAssistant, Content: "done"}
		event := CompleteEvent(&Response{
			AiMessage:    message,
			Conversation: conversation,
			Usage:        &Usage{TotalTokens: 12, LoopTruncated: true},
		})

		decoded := decodeFrame(t, event)
		assert.Equal(t, "complete", decoded["type"])
		response, ok := decoded["response"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, response, "ai_message")
		assert.Contains(t, response, "conversation")

		usage, ok := response["usage"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 12, usage["total_tokens"])
		assert.Equal(t, true, usage["loop_truncated"])
	})

	t.Run("complete frame serializes snake_case entity fields", func(t *testing.T) {
		conversation := &entity.Conversation{Id: uuid.New(), UserId: uuid.New(), Title: "Chat", IsActive: true}
		message := &entity.Message{
			Id:             uuid.New(),
			ConversationId: conversation.Id,
			Role:           entity.MessageRoleAssistant,
			Content:        "done",
			TokenCount:     3,
		}
		event := CompleteEvent(&Response{AiMessage: message, Conversation: conversation})

		raw, err := event.Frame()
		require.NoError(t, err)
		frame := string(raw)

		for _, key := range []string{`"conversation_id"`, `"token_count"`, `"is_active"`, `"message_count"`, `"user_id"`} {
			assert.Contains(t, frame, key)
		}
		for _, key := range []string{`"ConversationId"`, `"TokenCount"`, `"IsActive"`, `"IsDeleted"`, `"Id"`} {
			assert.NotContains(t, frame, key)
		}
	})

	t.Run("loop_truncated omitted when false", func(t *testing.T) {
		raw, err := json.Marshal(Usage{TotalTokens: 3})
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "loop_truncated")
	})
}
