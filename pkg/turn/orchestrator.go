package turn

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
)

// Policy defaults. MaxRounds bounds the tool-calling loop so a model that
// keeps requesting tools can never run away.
const (
	DefaultMaxRounds        = 5
	DefaultTurnTimeout      = 2 * time.Minute
	DefaultRetrievalTimeout = 5 * time.Second
	DefaultRetrievalLimit   = 5
	DefaultThreshold        = 0.35

	terminalSendGrace = 5 * time.Second
)

// Searcher is the retrieval client slice the orchestrator consumes.
// Any failure degrades to a no-context turn, never aborts it.
type Searcher interface {
	Retrieve(ctx context.Context, userId uuid.UUID, query string, scope []uuid.UUID, limit int, threshold float64) ([]store.Passage, error)
}

// Invoker executes one tool call and always settles, folding failures into
// the result. Must be safe for concurrent calls from the same round.
type Invoker interface {
	Invoke(ctx context.Context, call llm.ToolCall) store.ToolCallResult
}

// Config carries the orchestrator policy knobs.
type Config struct {
	MaxRounds        int
	TurnTimeout      time.Duration
	RetrievalTimeout time.Duration
	RetrievalLimit   int
	Threshold        float64
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = DefaultRetrievalTimeout
	}
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = DefaultRetrievalLimit
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// Orchestrator drives one conversation turn end to end: resolve the
// conversation, retrieve supporting context, run the bounded tool loop,
// relay stream events, and commit the result atomically.
type Orchestrator struct {
	store    ContextStore
	searcher Searcher
	invoker  Invoker
	provider llm.LLMProvider
	toolDefs []llm.ToolDef
	config   Config
	logger   *log.Logger
}

func NewOrchestrator(contextStore ContextStore, searcher Searcher, invoker Invoker, provider llm.LLMProvider, toolDefs []llm.ToolDef, config Config, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[TURN] ", log.LstdFlags)
	}
	return &Orchestrator{
		store:    contextStore,
		searcher: searcher,
		invoker:  invoker,
		provider: provider,
		toolDefs: toolDefs,
		config:   config.withDefaults(),
		logger:   logger,
	}
}

// Run executes the turn and returns its event stream. The channel is
// closed after the terminal end event; it always carries exactly one start
// first and one end last, on success, degrade and abort paths alike.
func (o *Orchestrator) Run(ctx context.Context, req *Request) <-chan Event {
	out := make(chan Event, 32)
	go func() {
		defer close(out)
		o.run(ctx, req, out)
	}()
	return out
}

// RunSync drains the stream and returns the final response, with the
// measured turn duration filled in.
func (o *Orchestrator) RunSync(ctx context.Context, req *Request) (*Response, error) {
	started := time.Now()
	var response *Response
	var turnErr error
	for event := range o.Run(ctx, req) {
		switch event.Type {
		case EventComplete:
			response = event.Response
		case EventError:
			turnErr = fmt.Errorf("turn failed: %s", event.Err)
		}
	}
	if turnErr != nil {
		return nil, turnErr
	}
	if response == nil {
		return nil, fmt.Errorf("turn produced no result")
	}
	response.ResponseTimeMs = time.Since(started).Milliseconds()
	return response, nil
}

func (o *Orchestrator) run(parent context.Context, req *Request, out chan<- Event) {
	ctx, cancel := context.WithTimeout(parent, o.config.TurnTimeout)
	defer cancel()
	ctx = store.WithUserId(ctx, req.UserId)

	o.terminal(out, StartEvent())

	if err := req.Validate(); err != nil {
		o.abort(out, err.Error())
		return
	}

	conversation, created, history, err := o.resolve(ctx, req)
	if err != nil {
		o.abort(out, err.Error())
		return
	}

	userMessage := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           entity.MessageRoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now(),
	}

	var passages []store.Passage
	if req.UseRetrieval {
		passages = o.retrieve(ctx, req)
	}

	working := make([]llm.Message, 0, len(history)+2)
	working = append(working, buildSystemMessage(passages))
	working = append(working, historyMessages(history)...)
	working = append(working, llm.Message{Role: "user", Content: req.Message})

	loopResult, err := o.toolLoop(ctx, req, working, out)
	if err != nil {
		if ctx.Err() != nil {
			o.abort(out, "turn cancelled: "+ctx.Err().Error())
		} else {
			o.abort(out, err.Error())
		}
		return
	}
	if ctx.Err() != nil {
		o.abort(out, "turn cancelled: "+ctx.Err().Error())
		return
	}

	assistantMessage := o.assembleMessage(conversation.Id, loopResult, passages)

	commit := &TurnCommit{
		Conversation:       conversation,
		CreateConversation: created,
		UserMessage:        userMessage,
		AssistantMessage:   assistantMessage,
	}
	if err := o.store.CommitTurn(ctx, commit); err != nil {
		o.abort(out, "failed to persist turn: "+err.Error())
		return
	}

	response := &Response{
		AiMessage:    assistantMessage,
		Conversation: conversation,
		Usage:        &loopResult.usage,
		RagContext:   passages,
	}
	if loopResult.summary.Calls > 0 {
		response.ToolCallSummary = &loopResult.summary
	}

	o.terminal(out, CompleteEvent(response))
	o.terminal(out, EndEvent())
}

// resolve loads the target conversation, or builds a new one in memory.
// Nothing is persisted here: a turn that never commits leaves no trace.
func (o *Orchestrator) resolve(ctx context.Context, req *Request) (*entity.Conversation, bool, []*entity.Message, error) {
	if req.ConversationId == nil {
		title := req.Title
		if title == "" {
			title = deriveTitle(req.Message)
		}
		conversation := &entity.Conversation{
			Id:        uuid.New(),
			UserId:    req.UserId,
			Title:     title,
			IsActive:  true,
			CreatedAt: time.Now(),
		}
		return conversation, true, nil, nil
	}

	conversation, err := o.store.GetConversation(ctx, req.UserId, *req.ConversationId)
	if err != nil {
		return nil, false, nil, err
	}
	history, err := o.store.History(ctx, conversation.Id)
	if err != nil {
		return nil, false, nil, fmt.Errorf("load history: %w", err)
	}
	return conversation, false, history, nil
}

// retrieve is best effort: any failure logs and degrades to no context.
func (o *Orchestrator) retrieve(ctx context.Context, req *Request) []store.Passage {
	if o.searcher == nil {
		return nil
	}
	retrievalCtx, cancel := context.WithTimeout(ctx, o.config.RetrievalTimeout)
	defer cancel()

	passages, err := o.searcher.Retrieve(retrievalCtx, req.UserId, req.Message, req.DocumentScope, o.config.RetrievalLimit, o.config.Threshold)
	if err != nil {
		o.logger.Printf("retrieval degraded, continuing without context: %v", err)
		return nil
	}
	return passages
}

type loopOutcome struct {
	content     string
	usage       Usage
	summary     ToolCallSummary
	toolCalls   []llm.ToolCall
	toolResults []store.ToolCallResult
}

// toolLoop runs bounded generation rounds. Each round streams content
// fragments out as they arrive; tool requests fan out concurrently and the
// round joins before the next generation. When the round cap is hit the
// last output is treated as final and the usage is marked truncated.
func (o *Orchestrator) toolLoop(ctx context.Context, req *Request, working []llm.Message, out chan<- Event) (*loopOutcome, error) {
	outcome := &loopOutcome{}
	opts := o.generationOptions(req)

	for round := 1; round <= o.config.MaxRounds; round++ {
		handler := func(fragment llm.Fragment) error {
			if fragment.Content == "" {
				return nil
			}
			outcome.content += fragment.Content
			if !o.emit(ctx, out, ContentEvent(fragment.Content)) {
				return ctx.Err()
			}
			return nil
		}

		result, err := o.provider.ChatStream(ctx, working, handler, opts...)
		if err != nil {
			return nil, fmt.Errorf("generation failed: %w", err)
		}

		outcome.usage.PromptTokens += result.Usage.PromptTokens
		outcome.usage.CompletionTokens += result.Usage.CompletionTokens
		outcome.usage.TotalTokens += result.Usage.TotalTokens

		if len(result.ToolCalls) == 0 || !req.UseTools {
			return outcome, nil
		}
		if round == o.config.MaxRounds {
			// Round cap hit: do not dispatch, the last output stands.
			outcome.usage.LoopTruncated = true
			if outcome.content == "" {
				outcome.content = truncatedFallback
				o.emit(ctx, out, ContentEvent(truncatedFallback))
			}
			o.logger.Printf("tool loop truncated at %d rounds", o.config.MaxRounds)
			return outcome, nil
		}

		results := o.dispatch(ctx, result.ToolCalls, out)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		outcome.summary.Rounds++
		outcome.summary.Calls += len(result.ToolCalls)
		for _, r := range results {
			if r.Failed() {
				outcome.summary.Failed++
			}
		}
		outcome.toolCalls = result.ToolCalls
		outcome.toolResults = results

		// Reassemble the transcript in request order so the next prompt is
		// deterministic regardless of completion order.
		working = append(working, llm.Message{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		for i, call := range result.ToolCalls {
			working = append(working, llm.Message{
				Role:       "tool",
				Content:    toolResultContent(results[i]),
				ToolCallId: call.Id,
			})
		}
	}

	return outcome, nil
}

// dispatch fans out all calls of one round concurrently, emits tool_call
// events in completion order, and returns results indexed by request order.
func (o *Orchestrator) dispatch(ctx context.Context, calls []llm.ToolCall, out chan<- Event) []store.ToolCallResult {
	type settled struct {
		index  int
		result store.ToolCallResult
	}

	done := make(chan settled, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(index int, call llm.ToolCall) {
			defer wg.Done()
			done <- settled{index: index, result: o.invoker.Invoke(ctx, call)}
		}(i, call)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	results := make([]store.ToolCallResult, len(calls))
	for s := range done {
		results[s.index] = s.result

		var payload any
		if s.result.Failed() {
			payload = map[string]any{"error": s.result.Error}
		} else {
			payload = s.result.Output
		}
		o.emit(ctx, out, ToolCallEvent(s.result.Name, payload))
	}
	return results
}

func (o *Orchestrator) assembleMessage(conversationId uuid.UUID, outcome *loopOutcome, passages []store.Passage) *entity.Message {
	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Role:           entity.MessageRoleAssistant,
		Content:        outcome.content,
		TokenCount:     outcome.usage.CompletionTokens,
		CreatedAt:      time.Now(),
	}

	for _, call := range outcome.toolCalls {
		message.ToolCalls = append(message.ToolCalls, entity.ToolCallRecord{
			CallId:    call.Id,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	for _, result := range outcome.toolResults {
		message.ToolResults = append(message.ToolResults, entity.ToolResultRecord{
			CallId: result.CallId,
			Name:   result.Name,
			Output: result.Output,
			Error:  result.Error,
		})
	}

	if len(passages) > 0 {
		chunkIds := make([]string, len(passages))
		for i, p := range passages {
			chunkIds[i] = p.ChunkId.String()
		}
		message.Metadata = map[string]any{"rag_chunk_ids": chunkIds}
	}
	return message
}

func (o *Orchestrator) generationOptions(req *Request) []llm.Option {
	var opts []llm.Option
	if req.Model != "" {
		opts = append(opts, llm.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(req.MaxTokens))
	}
	if req.UseTools && len(o.toolDefs) > 0 {
		opts = append(opts, llm.WithTools(o.toolDefs))
	}
	return opts
}

// emit relays a progress event, dropping it once the turn is cancelled.
func (o *Orchestrator) emit(ctx context.Context, out chan<- Event, event Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// terminal sends framing events (start, complete, error, end) that must go
// out even after cancellation. A consumer that abandoned the stream without
// draining forfeits them after the send grace period.
func (o *Orchestrator) terminal(out chan<- Event, event Event) {
	select {
	case out <- event:
	case <-time.After(terminalSendGrace):
	}
}

func (o *Orchestrator) abort(out chan<- Event, reason string) {
	o.logger.Printf("turn aborted: %s", reason)
	o.terminal(out, ErrorEvent(reason))
	o.terminal(out, EndEvent())
}
