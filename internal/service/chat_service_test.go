package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-assistant-be/internal/config"
	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/memory"
	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/store"
	"ai-assistant-be/pkg/turn"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }
func (noopLogger) GetLogs(level string, limit, offset int) ([]logger.LogEntry, error) {
	return nil, nil
}
func (noopLogger) GetLogById(id string) (*logger.LogEntry, error) { return nil, nil }

type stubContextStore struct {
	commits int
}

func (s *stubContextStore) GetConversation(context.Context, uuid.UUID, uuid.UUID) (*entity.Conversation, error) {
	return nil, turn.ErrConversationNotFound
}

func (s *stubContextStore) History(context.Context, uuid.UUID) ([]*entity.Message, error) {
	return nil, nil
}

func (s *stubContextStore) CommitTurn(context.Context, *turn.TurnCommit) error {
	s.commits++
	return nil
}

type stubProvider struct{}

func (stubProvider) ChatStream(_ context.Context, _ []llm.Message, handler llm.StreamHandler, _ ...llm.Option) (*llm.Result, error) {
	if err := handler(llm.Fragment{Content: "fine"}); err != nil {
		return nil, err
	}
	return &llm.Result{
		Content: "fine",
		Usage:   llm.Usage{PromptTokens: 4, CompletionTokens: 1, TotalTokens: 5},
	}, nil
}

func (p stubProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.Result, error) {
	return p.ChatStream(ctx, history, func(llm.Fragment) error { return nil }, options...)
}

func (stubProvider) Generate(context.Context, string, ...llm.Option) (string, error) {
	return "", nil
}

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, call llm.ToolCall) store.ToolCallResult {
	return store.ToolCallResult{CallId: call.Id, Name: call.Name}
}

type notifyRecorder struct {
	conversationIds []uuid.UUID
}

func (n *notifyRecorder) NotifyConversationUpdated(_, conversationId uuid.UUID, _ string) {
	n.conversationIds = append(n.conversationIds, conversationId)
}

func newStubChatService(t *testing.T, guard *memory.TurnGuardRepository, notifier IConversationNotifier) (IChatService, *stubContextStore) {
	t.Helper()
	contextStore := &stubContextStore{}
	orchestrator := turn.NewOrchestrator(contextStore, nil, stubInvoker{}, stubProvider{}, nil, turn.Config{
		TurnTimeout: 5 * time.Second,
	}, nil)
	svc := NewChatService(nil, orchestrator, guard, nil, notifier, config.OrchestratorConfig{}, noopLogger{})
	return svc, contextStore
}

func TestSendTurnReturnsCompletePayload(t *testing.T) {
	notifier := &notifyRecorder{}
	svc, contextStore := newStubChatService(t, memory.NewTurnGuardRepository(time.Minute), notifier)

	response, err := svc.SendTurn(context.Background(), uuid.New(), &dto.SendTurnRequest{Message: "hello"})
	require.NoError(t, err)

	// The non-streaming reply is the complete payload itself, not a
	// flattened projection of it.
	require.NotNil(t, response.AiMessage)
	assert.Equal(t, "fine", response.AiMessage.Content)
	require.NotNil(t, response.Conversation)
	require.NotNil(t, response.Usage)
	assert.Equal(t, 5, response.Usage.TotalTokens)
	assert.GreaterOrEqual(t, response.ResponseTimeMs, int64(0))

	response.ResponseTimeMs = 7
	raw, err := json.Marshal(response)
	require.NoError(t, err)
	for _, key := range []string{`"ai_message"`, `"conversation"`, `"usage"`, `"response_time_ms"`} {
		assert.Contains(t, string(raw), key)
	}

	assert.Equal(t, 1, contextStore.commits)
	require.Len(t, notifier.conversationIds, 1)
	assert.Equal(t, response.Conversation.Id, notifier.conversationIds[0])
}

func TestSendTurnRejectsConcurrentTurn(t *testing.T) {
	guard := memory.NewTurnGuardRepository(time.Minute)
	svc, contextStore := newStubChatService(t, guard, nil)

	conversationId := uuid.New()
	require.True(t, guard.Acquire(conversationId, &store.TurnState{
		ConversationId: conversationId.String(),
		StartedAt:      time.Now(),
	}))

	_, err := svc.SendTurn(context.Background(), uuid.New(), &dto.SendTurnRequest{
		ConversationId: &conversationId,
		Message:        "hi",
	})
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Zero(t, contextStore.commits)
}
