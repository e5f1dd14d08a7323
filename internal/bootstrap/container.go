package bootstrap

import (
	"context"
	"log"
	"os"
	"time"

	"ai-assistant-be/internal/config"
	"ai-assistant-be/internal/controller"
	"ai-assistant-be/internal/handler"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/memory"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/internal/service"
	"ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/llm/factory"
	"ai-assistant-be/pkg/retrieval"
	"ai-assistant-be/pkg/tools"
	"ai-assistant-be/pkg/turn"

	pktNats "ai-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController      controller.IChatController
	DocumentController  controller.IDocumentController
	NotificationHandler *handler.NotificationHandler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaEmbeddingModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbeddingModel)
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.GoogleGemini,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	wsLogger := logger.NewIsolatedLogger("logs/notification.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Turn Orchestrator wiring
	retriever := retrieval.NewRetriever(
		embeddingProvider,
		unitofwork.NewUnitOfWork(db).DocumentEmbeddingRepository(),
		unitofwork.NewUnitOfWork(db).DocumentRepository(),
	)

	toolTimeout := time.Duration(cfg.Orchestrator.ToolTimeoutSec) * time.Second
	registry := tools.NewRegistry(
		tools.NewCalculatorTool(),
		tools.NewClockTool(),
		tools.NewWeatherTool(),
		tools.NewDocumentSearchTool(retriever.Scoped(), cfg.Orchestrator.RetrievalTopK, cfg.Orchestrator.RetrievalThreshold),
	)
	invoker := tools.NewInvoker(registry, toolTimeout)

	contextStore := service.NewContextStore(uowFactory)
	turnLogger := newTurnLogger("logs/llm_turns.log")
	orchestrator := turn.NewOrchestrator(
		contextStore,
		retriever,
		invoker,
		llmProvider,
		registry.Definitions(),
		turn.Config{
			MaxRounds:      cfg.Orchestrator.MaxToolRounds,
			TurnTimeout:    time.Duration(cfg.Orchestrator.TurnTimeoutSec) * time.Second,
			RetrievalLimit: cfg.Orchestrator.RetrievalTopK,
			Threshold:      cfg.Orchestrator.RetrievalThreshold,
		},
		turnLogger,
	)

	turnGuard := memory.NewTurnGuardRepository(time.Duration(cfg.Orchestrator.TurnTimeoutSec) * time.Second)

	// 6. Services
	publisherService := service.NewPublisherService(cfg.Keys.DocumentTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Keys.DocumentTopic,
		uowFactory,
		embeddingProvider,
	)

	chatService := service.NewChatService(
		uowFactory,
		orchestrator,
		turnGuard,
		natsPub,
		wsHub,
		cfg.Orchestrator,
		sysLogger,
	)
	documentService := service.NewDocumentService(uowFactory, publisherService, sysLogger)

	// 7. Controllers
	return &Container{
		ChatController:      controller.NewChatController(chatService),
		DocumentController:  controller.NewDocumentController(documentService),
		NotificationHandler: handler.NewNotificationHandler(wsHub, wsLogger),
		ConsumerService:     consumerService,
		WebSocketHub:        wsHub,
	}
}

// newTurnLogger opens the dedicated orchestrator log, falling back to
// stderr when the file cannot be created.
func newTurnLogger(path string) *log.Logger {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return log.New(os.Stderr, "[TURN] ", log.LstdFlags)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return log.New(os.Stderr, "[TURN] ", log.LstdFlags)
	}
	return log.New(file, "[TURN] ", log.LstdFlags)
}
