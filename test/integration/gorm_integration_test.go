package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/internal/service"
	"ai-assistant-be/pkg/database"
	"ai-assistant-be/pkg/turn"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.ConversationRepository())
	assert.NotNil(t, uow.MessageRepository())
	assert.NotNil(t, uow.DocumentRepository())
	assert.NotNil(t, uow.DocumentEmbeddingRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)
	t.Log("Successfully connected to DB and initialized UnitOfWork Factory")

	t.Run("Check Conversation Repository", func(t *testing.T) {
		count, err := uow.ConversationRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Conversation count: %d", count)
	})

	t.Run("Check Document Embedding Repository", func(t *testing.T) {
		count, err := uow.DocumentEmbeddingRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("DocumentEmbedding count: %d", count)
	})
}

func TestContextStoreCommitRoundTrip(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)

	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	contextStore := service.NewContextStore(uowFactory)
	ctx := context.Background()

	userId := uuid.New()
	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     "integration round trip",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	userMessage := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           entity.MessageRoleUser,
		Content:        "hello from the integration test",
		CreatedAt:      time.Now(),
	}
	assistantMessage := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           entity.MessageRoleAssistant,
		Content:        "hello back",
		TokenCount:     2,
		CreatedAt:      time.Now(),
	}

	err = contextStore.CommitTurn(ctx, &turn.TurnCommit{
		Conversation:       conversation,
		CreateConversation: true,
		UserMessage:        userMessage,
		AssistantMessage:   assistantMessage,
	})
	require.NoError(t, err)

	// Cleanup regardless of assertion outcomes.
	defer func() {
		uow := uowFactory.NewUnitOfWork(ctx)
		_ = uow.MessageRepository().DeleteByConversationId(ctx, conversation.Id)
		_ = uow.ConversationRepository().Delete(ctx, conversation.Id)
	}()

	loaded, err := contextStore.GetConversation(ctx, userId, conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, "integration round trip", loaded.Title)
	assert.Equal(t, 2, loaded.MessageCount)

	history, err := contextStore.History(ctx, conversation.Id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.MessageRoleUser, history[0].Role)
	assert.Equal(t, entity.MessageRoleAssistant, history[1].Role)

	// Other users never see the conversation.
	_, err = contextStore.GetConversation(ctx, uuid.New(), conversation.Id)
	assert.ErrorIs(t, err, turn.ErrConversationNotFound)

	// Sanity: the messages are reachable through the repository layer too.
	uow := uowFactory.NewUnitOfWork(ctx)
	count, err := uow.MessageRepository().Count(ctx, specification.ByConversationID{ConversationID: conversation.Id})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
