package service

import (
	"context"
	"errors"
	"time"

	"ai-assistant-be/internal/config"
	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/memory"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/pkg/events"
	pktNats "ai-assistant-be/pkg/nats"
	"ai-assistant-be/pkg/store"
	"ai-assistant-be/pkg/turn"

	"github.com/google/uuid"
)

// ErrTurnInFlight rejects a second concurrent turn on one conversation.
var ErrTurnInFlight = errors.New("a turn is already running for this conversation")

// IConversationNotifier pushes committed-turn notifications to connected
// clients of the owning user.
type IConversationNotifier interface {
	NotifyConversationUpdated(userId, conversationId uuid.UUID, title string)
}

type IChatService interface {
	CreateConversation(ctx context.Context, userId uuid.UUID, req *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error)
	GetAllConversations(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllConversationsResponse, error)
	GetHistory(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.GetHistoryResponse, error)
	SendTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (*turn.Response, error)
	StreamTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (<-chan turn.Event, error)
	DeleteConversation(ctx context.Context, userId, conversationId uuid.UUID) error
}

type chatService struct {
	uowFactory     unitofwork.RepositoryFactory
	orchestrator   *turn.Orchestrator
	guard          *memory.TurnGuardRepository
	eventPublisher *pktNats.Publisher
	notifier       IConversationNotifier
	policy         config.OrchestratorConfig
	logger         logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	orchestrator *turn.Orchestrator,
	guard *memory.TurnGuardRepository,
	eventPublisher *pktNats.Publisher,
	notifier IConversationNotifier,
	policy config.OrchestratorConfig,
	appLogger logger.ILogger,
) IChatService {
	return &chatService{
		uowFactory:     uowFactory,
		orchestrator:   orchestrator,
		guard:          guard,
		eventPublisher: eventPublisher,
		notifier:       notifier,
		policy:         policy,
		logger:         appLogger,
	}
}

func (c *chatService) CreateConversation(ctx context.Context, userId uuid.UUID, req *dto.CreateConversationRequest) (*dto.CreateConversationResponse, error) {
	title := req.Title
	if title == "" {
		title = "New conversation"
	}
	conversation := entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationRepository().Create(ctx, &conversation); err != nil {
		c.logger.Error("chat", "failed to create conversation", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return &dto.CreateConversationResponse{Id: conversation.Id}, nil
}

func (c *chatService) GetAllConversations(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllConversationsResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "updated_at", Direction: "desc"},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetAllConversationsResponse, len(conversations))
	for i, conversation := range conversations {
		responses[i] = &dto.GetAllConversationsResponse{
			Id:           conversation.Id,
			Title:        conversation.Title,
			MessageCount: conversation.MessageCount,
			CreatedAt:    conversation.CreatedAt,
			UpdatedAt:    conversation.UpdatedAt,
		}
	}
	return responses, nil
}

func (c *chatService) GetHistory(ctx context.Context, userId, conversationId uuid.UUID) ([]*dto.GetHistoryResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, turn.ErrConversationNotFound
	}

	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "created_at", Direction: "asc"},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetHistoryResponse, len(messages))
	for i, message := range messages {
		responses[i] = &dto.GetHistoryResponse{
			Id:          message.Id,
			Role:        message.Role,
			Content:     message.Content,
			ToolCalls:   toolCallDTOs(message.ToolCalls),
			ToolResults: toolResultDTOs(message.ToolResults),
			CreatedAt:   message.CreatedAt,
		}
	}
	return responses, nil
}

// SendTurn resolves the whole turn synchronously. The wire shape is the
// stream protocol's complete payload plus the measured response time.
func (c *chatService) SendTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (*turn.Response, error) {
	request := c.buildTurnRequest(userId, req)
	release, err := c.acquireGuard(request)
	if err != nil {
		return nil, err
	}
	defer release()

	response, err := c.orchestrator.RunSync(ctx, request)
	if err != nil {
		return nil, err
	}
	c.afterCommit(ctx, response)
	return response, nil
}

func (c *chatService) StreamTurn(ctx context.Context, userId uuid.UUID, req *dto.SendTurnRequest) (<-chan turn.Event, error) {
	request := c.buildTurnRequest(userId, req)
	if err := request.Validate(); err != nil {
		return nil, err
	}
	release, err := c.acquireGuard(request)
	if err != nil {
		return nil, err
	}

	source := c.orchestrator.Run(ctx, request)
	out := make(chan turn.Event, 32)
	go func() {
		defer close(out)
		defer release()
		for event := range source {
			if event.Type == turn.EventComplete {
				c.afterCommit(ctx, event.Response)
			}
			out <- event
		}
	}()
	return out, nil
}

func (c *chatService) DeleteConversation(ctx context.Context, userId, conversationId uuid.UUID) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return err
	}
	if conversation == nil {
		return turn.ErrConversationNotFound
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.MessageRepository().DeleteByConversationId(ctx, conversationId); err != nil {
		return err
	}
	if err := uow.ConversationRepository().Delete(ctx, conversationId); err != nil {
		return err
	}
	return uow.Commit()
}

func (c *chatService) buildTurnRequest(userId uuid.UUID, req *dto.SendTurnRequest) *turn.Request {
	request := &turn.Request{
		UserId:         userId,
		ConversationId: req.ConversationId,
		Title:          req.Title,
		Message:        req.Message,
		UseRetrieval:   c.policy.DefaultUseRag,
		UseTools:       c.policy.DefaultUseTools,
		DocumentScope:  req.DocumentScope,
		Model:          req.Model,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	}
	if req.UseRetrieval != nil {
		request.UseRetrieval = *req.UseRetrieval
	}
	if req.UseTools != nil {
		request.UseTools = *req.UseTools
	}
	return request
}

func (c *chatService) acquireGuard(request *turn.Request) (func(), error) {
	if request.ConversationId == nil {
		return func() {}, nil
	}
	conversationId := *request.ConversationId
	acquired := c.guard.Acquire(conversationId, &store.TurnState{
		ConversationId: conversationId.String(),
		UserId:         request.UserId.String(),
		StartedAt:      time.Now(),
	})
	if !acquired {
		return nil, ErrTurnInFlight
	}
	return func() { c.guard.Release(conversationId) }, nil
}

// afterCommit runs best-effort side effects for a committed turn: the NATS
// event and the websocket notification. Neither can fail the turn.
func (c *chatService) afterCommit(ctx context.Context, response *turn.Response) {
	if response == nil || response.Conversation == nil {
		return
	}
	if c.eventPublisher != nil {
		event := events.NewConversationTurnCommitted(response.Conversation.Id, response.Conversation.UserId, response.AiMessage.Id)
		if err := c.eventPublisher.Publish(ctx, event); err != nil {
			c.logger.Warn("chat", "failed to publish turn_committed event", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.notifier != nil {
		c.notifier.NotifyConversationUpdated(response.Conversation.UserId, response.Conversation.Id, response.Conversation.Title)
	}
}

func toolCallDTOs(records []entity.ToolCallRecord) []dto.ToolCallDTO {
	if len(records) == 0 {
		return nil
	}
	dtos := make([]dto.ToolCallDTO, len(records))
	for i, r := range records {
		dtos[i] = dto.ToolCallDTO{CallId: r.CallId, Name: r.Name, Arguments: r.Arguments}
	}
	return dtos
}

func toolResultDTOs(records []entity.ToolResultRecord) []dto.ToolResultDTO {
	if len(records) == 0 {
		return nil
	}
	dtos := make([]dto.ToolResultDTO, len(records))
	for i, r := range records {
		dtos[i] = dto.ToolResultDTO{CallId: r.CallId, Name: r.Name, Output: r.Output, Error: r.Error}
	}
	return dtos
}
