package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/pkg/turn"

	"github.com/google/uuid"
)

// contextStore backs the orchestrator's ContextStore with the gorm
// unit-of-work. CommitTurn holds a per-conversation lock so two turns on
// the same conversation can never interleave their commits; turns on
// different conversations commit fully in parallel.
type contextStore struct {
	uowFactory unitofwork.RepositoryFactory

	mu    sync.Mutex
	locks map[uuid.UUID]*conversationLock
}

// conversationLock is refcounted so the entry can be evicted once the last
// waiter releases; the map stays bounded by in-flight commits.
type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func NewContextStore(uowFactory unitofwork.RepositoryFactory) turn.ContextStore {
	return &contextStore{
		uowFactory: uowFactory,
		locks:      make(map[uuid.UUID]*conversationLock),
	}
}

// lockConversation blocks until the conversation is exclusively held and
// returns the release func.
func (s *contextStore) lockConversation(conversationId uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.locks[conversationId]
	if !ok {
		lock = &conversationLock{}
		s.locks[conversationId] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, conversationId)
		}
		s.mu.Unlock()
	}
}

func (s *contextStore) GetConversation(ctx context.Context, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conversation == nil {
		return nil, turn.ErrConversationNotFound
	}
	return conversation, nil
}

func (s *contextStore) History(ctx context.Context, conversationId uuid.UUID) ([]*entity.Message, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at", Direction: "asc"},
	)
}

func (s *contextStore) CommitTurn(ctx context.Context, commit *turn.TurnCommit) error {
	release := s.lockConversation(commit.Conversation.Id)
	defer release()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer uow.Rollback()

	appended := 0
	if commit.CreateConversation {
		if err := uow.ConversationRepository().Create(ctx, commit.Conversation); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
	}
	if commit.UserMessage != nil {
		if err := uow.MessageRepository().Create(ctx, commit.UserMessage); err != nil {
			return fmt.Errorf("append user message: %w", err)
		}
		appended++
	}
	if err := uow.MessageRepository().Create(ctx, commit.AssistantMessage); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	appended++

	now := time.Now()
	commit.Conversation.MessageCount += appended
	commit.Conversation.UpdatedAt = &now
	if err := uow.ConversationRepository().Update(ctx, commit.Conversation); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}
