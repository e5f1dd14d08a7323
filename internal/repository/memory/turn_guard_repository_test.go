package memory

import (
	"testing"
	"time"

	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRejectsSecondTurn(t *testing.T) {
	guard := NewTurnGuardRepository(time.Minute)
	conversationId := uuid.New()
	state := &store.TurnState{
		ConversationId: conversationId.String(),
		UserId:         uuid.New().String(),
		StartedAt:      time.Now(),
	}

	assert.True(t, guard.Acquire(conversationId, state))
	assert.False(t, guard.Acquire(conversationId, state), "second acquire must fail while the turn runs")

	got, found := guard.Get(conversationId)
	require.True(t, found)
	assert.Equal(t, state.UserId, got.UserId)

	guard.Release(conversationId)
	assert.True(t, guard.Acquire(conversationId, state), "released conversation accepts a new turn")
}

func TestAcquireIsPerConversation(t *testing.T) {
	guard := NewTurnGuardRepository(time.Minute)
	a, b := uuid.New(), uuid.New()

	assert.True(t, guard.Acquire(a, &store.TurnState{}))
	assert.True(t, guard.Acquire(b, &store.TurnState{}), "different conversations never contend")
}

func TestAcquireExpires(t *testing.T) {
	guard := NewTurnGuardRepository(20 * time.Millisecond)
	conversationId := uuid.New()

	require.True(t, guard.Acquire(conversationId, &store.TurnState{}))
	time.Sleep(40 * time.Millisecond)
	assert.True(t, guard.Acquire(conversationId, &store.TurnState{}), "a crashed turn must not wedge its conversation")
}
