package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBareContextStore() *contextStore {
	return &contextStore{locks: make(map[uuid.UUID]*conversationLock)}
}

func TestLockConversationEvictsWhenIdle(t *testing.T) {
	s := newBareContextStore()
	conversationId := uuid.New()

	release := s.lockConversation(conversationId)
	assert.Len(t, s.locks, 1)

	release()
	assert.Empty(t, s.locks, "idle lock entries must not accumulate")
}

func TestLockConversationSerializesHolders(t *testing.T) {
	s := newBareContextStore()
	conversationId := uuid.New()

	releaseFirst := s.lockConversation(conversationId)

	acquired := make(chan func(), 1)
	go func() {
		acquired <- s.lockConversation(conversationId)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while the first still held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	releaseFirst()
	select {
	case releaseSecond := <-acquired:
		releaseSecond()
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired after release")
	}

	assert.Empty(t, s.locks)
}

func TestLockConversationIndependentConversations(t *testing.T) {
	s := newBareContextStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := s.lockConversation(uuid.New())
			release()
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent conversations blocked each other")
	}

	require.Empty(t, s.locks)
}
