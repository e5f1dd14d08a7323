package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// FAKES
// ============================================================

type scriptedRound struct {
	fragments []string
	result    llm.Result
	err       error
}

// fakeProvider replays scripted generation rounds. When loop is set every
// round replays the same script, which is how the round-cap tests force a
// model that never stops requesting tools.
type fakeProvider struct {
	mu      sync.Mutex
	rounds  []scriptedRound
	loop    *scriptedRound
	prompts [][]llm.Message
	calls   int
}

func (p *fakeProvider) ChatStream(ctx context.Context, history []llm.Message, handler llm.StreamHandler, _ ...llm.Option) (*llm.Result, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.mu.Lock()
	copied := make([]llm.Message, len(history))
	copy(copied, history)
	p.prompts = append(p.prompts, copied)
	round := p.loop
	if round == nil {
		if p.calls >= len(p.rounds) {
			p.mu.Unlock()
			return nil, fmt.Errorf("unscripted generation round %d", p.calls+1)
		}
		round = &p.rounds[p.calls]
	}
	p.calls++
	p.mu.Unlock()

	if round.err != nil {
		return nil, round.err
	}
	for _, f := range round.fragments {
		if err := handler(llm.Fragment{Content: f}); err != nil {
			return nil, err
		}
	}
	result := round.result
	return &result, nil
}

func (p *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.Result, error) {
	return p.ChatStream(ctx, history, func(llm.Fragment) error { return nil }, options...)
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return "", nil
}

func (p *fakeProvider) promptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func (p *fakeProvider) prompt(i int) []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[i]
}

type fakeStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*entity.Conversation
	histories     map[uuid.UUID][]*entity.Message
	commits       []*TurnCommit
	commitErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]*entity.Conversation),
		histories:     make(map[uuid.UUID][]*entity.Message),
	}
}

func (s *fakeStore) GetConversation(_ context.Context, userId, conversationId uuid.UUID) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[conversationId]
	if !ok || conversation.UserId != userId {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *fakeStore) History(_ context.Context, conversationId uuid.UUID) ([]*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[conversationId]
	out := make([]*entity.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *fakeStore) CommitTurn(_ context.Context, commit *TurnCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, commit)
	s.conversations[commit.Conversation.Id] = commit.Conversation
	s.histories[commit.Conversation.Id] = append(
		s.histories[commit.Conversation.Id],
		commit.UserMessage,
		commit.AssistantMessage,
	)
	return nil
}

func (s *fakeStore) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}

type fakeSearcher struct {
	passages []store.Passage
	err      error
	calls    int
}

func (s *fakeSearcher) Retrieve(_ context.Context, _ uuid.UUID, _ string, _ []uuid.UUID, _ int, _ float64) ([]store.Passage, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.passages, nil
}

type fakeInvoker struct {
	mu    sync.Mutex
	fn    func(call llm.ToolCall) store.ToolCallResult
	calls int
}

func (i *fakeInvoker) Invoke(_ context.Context, call llm.ToolCall) store.ToolCallResult {
	i.mu.Lock()
	i.calls++
	fn := i.fn
	i.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return store.ToolCallResult{
		CallId: call.Id,
		Name:   call.Name,
		Output: map[string]any{"ok": true},
	}
}

func (i *fakeInvoker) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// ============================================================
// HELPERS
// ============================================================

func newTestOrchestrator(cs ContextStore, searcher Searcher, invoker Invoker, provider llm.LLMProvider) *Orchestrator {
	return NewOrchestrator(cs, searcher, invoker, provider, nil, Config{
		MaxRounds:   3,
		TurnTimeout: 10 * time.Second,
	}, log.New(&discard{}, "", 0))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var collected []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-deadline:
			t.Fatal("event stream did not close in time")
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func assertFraming(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Type, "stream must open with start")
	assert.Equal(t, EventEnd, events[len(events)-1].Type, "stream must close with end")
	starts, ends := 0, 0
	for _, e := range events {
		switch e.Type {
		case EventStart:
			starts++
		case EventEnd:
			ends++
		}
	}
	assert.Equal(t, 1, starts, "exactly one start")
	assert.Equal(t, 1, ends, "exactly one end")
}

func findEvent(events []Event, eventType EventType) (Event, bool) {
	for _, e := range events {
		if e.Type == eventType {
			return e, true
		}
	}
	return Event{}, false
}

// ============================================================
// TESTS
// ============================================================

func TestRunSimpleTurn(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{
			fragments: []string{"Hello", " there"},
			result: llm.Result{
				Content: "Hello there",
				Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
			},
		},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	userId := uuid.New()
	events := collect(t, o.Run(context.Background(), &Request{
		UserId:  userId,
		Message: "Hi, how are you doing today my friend",
	}))

	assertFraming(t, events)
	assert.Equal(t,
		[]EventType{EventStart, EventContent, EventContent, EventComplete, EventEnd},
		eventTypes(events),
	)

	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok)
	response := complete.Response
	require.NotNil(t, response)
	assert.Equal(t, "Hello there", response.AiMessage.Content)
	assert.Equal(t, 14, response.Usage.TotalTokens)
	assert.False(t, response.Usage.LoopTruncated)
	assert.Nil(t, response.ToolCallSummary)
	assert.Empty(t, response.RagContext)

	require.Equal(t, 1, contextStore.commitCount())
	commit := contextStore.commits[0]
	assert.True(t, commit.CreateConversation)
	assert.Equal(t, userId, commit.Conversation.UserId)
	assert.Equal(t, "Hi, how are you doing today my friend", commit.Conversation.Title)
	assert.Equal(t, entity.MessageRoleUser, commit.UserMessage.Role)
	assert.Equal(t, entity.MessageRoleAssistant, commit.AssistantMessage.Role)
	assert.Equal(t, commit.Conversation.Id, commit.UserMessage.ConversationId)
}

func TestRunEmptyMessageRejected(t *testing.T) {
	contextStore := newFakeStore()
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, &fakeProvider{})

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:  uuid.New(),
		Message: "   ",
	}))

	assertFraming(t, events)
	assert.Equal(t, []EventType{EventStart, EventError, EventEnd}, eventTypes(events))
	errEvent, _ := findEvent(events, EventError)
	assert.Contains(t, errEvent.Err, "must not be empty")
	assert.Zero(t, contextStore.commitCount())
}

func TestRunRetrievalFailureDegrades(t *testing.T) {
	contextStore := newFakeStore()
	searcher := &fakeSearcher{err: errors.New("vector index offline")}
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"answer"}, result: llm.Result{Content: "answer"}},
	}}
	o := newTestOrchestrator(contextStore, searcher, &fakeInvoker{}, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:       uuid.New(),
		Message:      "what do my notes say",
		UseRetrieval: true,
	}))

	assertFraming(t, events)
	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok, "turn must complete despite retrieval failure")
	assert.Empty(t, complete.Response.RagContext)
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, 1, contextStore.commitCount())

	// Degraded turn prompts without reference material.
	system := provider.prompt(0)[0]
	assert.Equal(t, "system", system.Role)
	assert.NotContains(t, system.Content, "<reference_material>")
}

func TestRunRetrievalContextGroundsPrompt(t *testing.T) {
	contextStore := newFakeStore()
	chunkId := uuid.New()
	searcher := &fakeSearcher{passages: []store.Passage{
		{DocumentId: uuid.New(), ChunkId: chunkId, Title: "Quarterly Plan", Content: "Ship the beta in March.", Score: 0.91},
	}}
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"The plan says March."}, result: llm.Result{Content: "The plan says March."}},
	}}
	o := newTestOrchestrator(contextStore, searcher, &fakeInvoker{}, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:       uuid.New(),
		Message:      "when do we ship",
		UseRetrieval: true,
	}))

	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok)
	require.Len(t, complete.Response.RagContext, 1)
	assert.Equal(t, "Quarterly Plan", complete.Response.RagContext[0].Title)

	system := provider.prompt(0)[0]
	assert.Contains(t, system.Content, "<reference_material>")
	assert.Contains(t, system.Content, "Ship the beta in March.")

	require.Equal(t, 1, contextStore.commitCount())
	metadata := contextStore.commits[0].AssistantMessage.Metadata
	require.NotNil(t, metadata)
	assert.Equal(t, []string{chunkId.String()}, metadata["rag_chunk_ids"])
}

func TestRunToolRound(t *testing.T) {
	contextStore := newFakeStore()
	calls := []llm.ToolCall{
		{Id: "call-1", Name: "calculator", Arguments: map[string]any{"expression": "2+2"}},
		{Id: "call-2", Name: "weather", Arguments: map[string]any{"city": "Jakarta"}},
	}
	provider := &fakeProvider{rounds: []scriptedRound{
		{result: llm.Result{ToolCalls: calls, Usage: llm.Usage{PromptTokens: 20, TotalTokens: 20}}},
		{fragments: []string{"It is 4 and sunny."}, result: llm.Result{
			Content: "It is 4 and sunny.",
			Usage:   llm.Usage{PromptTokens: 30, CompletionTokens: 6, TotalTokens: 36},
		}},
	}}
	invoker := &fakeInvoker{fn: func(call llm.ToolCall) store.ToolCallResult {
		return store.ToolCallResult{CallId: call.Id, Name: call.Name, Output: map[string]any{"tool": call.Name}}
	}}
	o := newTestOrchestrator(contextStore, nil, invoker, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:   uuid.New(),
		Message:  "what is 2+2 and the weather in Jakarta",
		UseTools: true,
	}))

	assertFraming(t, events)

	// Both tool_call events precede the final round's content.
	var toolEvents, contentAfterTools int
	seenTools := 0
	for _, e := range events {
		switch e.Type {
		case EventToolCall:
			toolEvents++
			seenTools++
		case EventContent:
			if seenTools > 0 {
				contentAfterTools++
			} else {
				t.Fatalf("content before tool dispatch finished")
			}
		}
	}
	assert.Equal(t, 2, toolEvents)
	assert.Equal(t, 1, contentAfterTools)

	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok)
	summary := complete.Response.ToolCallSummary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Rounds)
	assert.Equal(t, 2, summary.Calls)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 56, complete.Response.Usage.TotalTokens)

	// Second prompt carries the assistant request plus tool replies in
	// request order, regardless of completion order.
	require.Equal(t, 2, provider.promptCount())
	second := provider.prompt(1)
	n := len(second)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, "assistant", second[n-3].Role)
	require.Len(t, second[n-3].ToolCalls, 2)
	assert.Equal(t, "tool", second[n-2].Role)
	assert.Equal(t, "call-1", second[n-2].ToolCallId)
	assert.Equal(t, "tool", second[n-1].Role)
	assert.Equal(t, "call-2", second[n-1].ToolCallId)

	// Persisted audit trail holds the executed round.
	require.Equal(t, 1, contextStore.commitCount())
	assistant := contextStore.commits[0].AssistantMessage
	require.Len(t, assistant.ToolCalls, 2)
	require.Len(t, assistant.ToolResults, 2)
	assert.Equal(t, "calculator", assistant.ToolCalls[0].Name)
}

func TestRunToolFailureIsNotFatal(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{result: llm.Result{ToolCalls: []llm.ToolCall{
			{Id: "ok", Name: "clock", Arguments: map[string]any{}},
			{Id: "bad", Name: "weather", Arguments: map[string]any{}},
		}}},
		{fragments: []string{"done"}, result: llm.Result{Content: "done"}},
	}}
	invoker := &fakeInvoker{fn: func(call llm.ToolCall) store.ToolCallResult {
		if call.Id == "bad" {
			return store.ToolCallResult{CallId: call.Id, Name: call.Name, Error: "upstream timeout"}
		}
		return store.ToolCallResult{CallId: call.Id, Name: call.Name, Output: map[string]any{"time": "now"}}
	}}
	o := newTestOrchestrator(contextStore, nil, invoker, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:   uuid.New(),
		Message:  "time and weather please",
		UseTools: true,
	}))

	assertFraming(t, events)
	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok, "one failed tool must not abort the turn")
	assert.Equal(t, 1, complete.Response.ToolCallSummary.Failed)

	// The failure is folded into the tool_call event payload.
	var failedPayloads int
	for _, e := range events {
		if e.Type != EventToolCall {
			continue
		}
		if payload, ok := e.ToolResult.(map[string]any); ok && payload["error"] == "upstream timeout" {
			failedPayloads++
		}
	}
	assert.Equal(t, 1, failedPayloads)

	// And recorded on the persisted message.
	assistant := contextStore.commits[0].AssistantMessage
	var recordedError string
	for _, r := range assistant.ToolResults {
		if r.CallId == "bad" {
			recordedError = r.Error
		}
	}
	assert.Equal(t, "upstream timeout", recordedError)
}

func TestRunLoopTruncatedAtRoundCap(t *testing.T) {
	contextStore := newFakeStore()
	greedy := scriptedRound{
		fragments: []string{"thinking..."},
		result: llm.Result{
			Content:   "thinking...",
			ToolCalls: []llm.ToolCall{{Id: "again", Name: "clock", Arguments: map[string]any{}}},
			Usage:     llm.Usage{TotalTokens: 5},
		},
	}
	provider := &fakeProvider{loop: &greedy}
	invoker := &fakeInvoker{}
	o := newTestOrchestrator(contextStore, nil, invoker, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:   uuid.New(),
		Message:  "keep calling tools forever",
		UseTools: true,
	}))

	assertFraming(t, events)
	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok, "hitting the cap is a successful turn, not an error")
	assert.True(t, complete.Response.Usage.LoopTruncated)

	// MaxRounds generations, tools dispatched on all but the last round.
	assert.Equal(t, 3, provider.promptCount())
	assert.Equal(t, 2, invoker.callCount())
	assert.Equal(t, 2, complete.Response.ToolCallSummary.Rounds)
	assert.Equal(t, 1, contextStore.commitCount())
}

func TestRunLoopTruncatedWithoutTextFallsBack(t *testing.T) {
	contextStore := newFakeStore()
	silent := scriptedRound{
		result: llm.Result{
			ToolCalls: []llm.ToolCall{{Id: "again", Name: "clock", Arguments: map[string]any{}}},
		},
	}
	provider := &fakeProvider{loop: &silent}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:   uuid.New(),
		Message:  "tools only, no words",
		UseTools: true,
	}))

	complete, ok := findEvent(events, EventComplete)
	require.True(t, ok)
	assert.True(t, complete.Response.Usage.LoopTruncated)
	assert.NotEmpty(t, complete.Response.AiMessage.Content, "a capped turn still answers")

	_, hasContent := findEvent(events, EventContent)
	assert.True(t, hasContent, "the fallback answer is streamed too")
}

func TestRunGenerationFailureIsFatal(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{err: errors.New("model unavailable")},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:  uuid.New(),
		Message: "hello",
	}))

	assertFraming(t, events)
	errEvent, ok := findEvent(events, EventError)
	require.True(t, ok)
	assert.Contains(t, errEvent.Err, "generation failed")
	_, completed := findEvent(events, EventComplete)
	assert.False(t, completed)
	assert.Zero(t, contextStore.commitCount(), "a failed turn must leave no trace")
}

func TestRunCancelledTurnCommitsNothing(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"never delivered"}, result: llm.Result{Content: "never delivered"}},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(t, o.Run(ctx, &Request{
		UserId:  uuid.New(),
		Message: "hello",
	}))

	assertFraming(t, events)
	errEvent, ok := findEvent(events, EventError)
	require.True(t, ok)
	assert.Contains(t, errEvent.Err, "cancelled")
	assert.Zero(t, contextStore.commitCount())
}

func TestRunUnknownConversation(t *testing.T) {
	contextStore := newFakeStore()
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, &fakeProvider{})

	missing := uuid.New()
	events := collect(t, o.Run(context.Background(), &Request{
		UserId:         uuid.New(),
		ConversationId: &missing,
		Message:        "hello",
	}))

	assertFraming(t, events)
	errEvent, ok := findEvent(events, EventError)
	require.True(t, ok)
	assert.Equal(t, ErrConversationNotFound.Error(), errEvent.Err)
	assert.Zero(t, contextStore.commitCount())
}

func TestRunCommitFailureAborts(t *testing.T) {
	contextStore := newFakeStore()
	contextStore.commitErr = errors.New("deadlock detected")
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"answer"}, result: llm.Result{Content: "answer"}},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	events := collect(t, o.Run(context.Background(), &Request{
		UserId:  uuid.New(),
		Message: "hello",
	}))

	assertFraming(t, events)
	errEvent, ok := findEvent(events, EventError)
	require.True(t, ok)
	assert.Contains(t, errEvent.Err, "failed to persist turn")
	_, completed := findEvent(events, EventComplete)
	assert.False(t, completed)
}

func TestRunRepeatedTurnsShareHistory(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"First answer"}, result: llm.Result{Content: "First answer"}},
		{fragments: []string{"Second answer"}, result: llm.Result{Content: "Second answer"}},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)
	userId := uuid.New()

	first := collect(t, o.Run(context.Background(), &Request{
		UserId:  userId,
		Message: "first question",
	}))
	complete, ok := findEvent(first, EventComplete)
	require.True(t, ok)
	conversationId := complete.Response.Conversation.Id

	second := collect(t, o.Run(context.Background(), &Request{
		UserId:         userId,
		ConversationId: &conversationId,
		Message:        "second question",
	}))
	complete2, ok := findEvent(second, EventComplete)
	require.True(t, ok)
	assert.False(t, contextStore.commits[1].CreateConversation)
	assert.Equal(t, conversationId, complete2.Response.Conversation.Id)

	// Two independent commits, four messages total.
	require.Equal(t, 2, contextStore.commitCount())
	assert.Len(t, contextStore.histories[conversationId], 4)

	// The second prompt replays the first turn's dialogue.
	prompt := provider.prompt(1)
	var contents []string
	for _, m := range prompt {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "first question")
	assert.Contains(t, contents, "First answer")
	assert.Equal(t, "second question", prompt[len(prompt)-1].Content)
}

func TestRunSyncMeasuresDuration(t *testing.T) {
	contextStore := newFakeStore()
	provider := &fakeProvider{rounds: []scriptedRound{
		{fragments: []string{"quick"}, result: llm.Result{Content: "quick"}},
	}}
	o := newTestOrchestrator(contextStore, nil, &fakeInvoker{}, provider)

	response, err := o.RunSync(context.Background(), &Request{
		UserId:  uuid.New(),
		Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "quick", response.AiMessage.Content)
	assert.GreaterOrEqual(t, response.ResponseTimeMs, int64(0))

	_, err = o.RunSync(context.Background(), &Request{
		UserId:  uuid.New(),
		Message: " ",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn failed")
}
