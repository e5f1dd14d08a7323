package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role       string // "user", "assistant", "system", "tool"
	Content    string
	ToolCalls  []ToolCall // Calls requested by the assistant (assistant role only)
	ToolCallId string     // Id of the call this message answers (tool role only)
}

// ToolCall is a single tool invocation requested by the model
type ToolCall struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDef describes a callable tool to the model
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema of the arguments object
}

// Usage reports token consumption for one generation
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the complete output of one generation round
type Result struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Fragment is one incremental piece of a streamed generation.
// Exactly one of Content / ToolCall is set, except the terminal
// fragment which carries Done=true and may otherwise be empty.
type Fragment struct {
	Content  string
	ToolCall *ToolCall
	Done     bool
}

// StreamHandler receives fragments as they arrive.
// Returning an error aborts the stream.
type StreamHandler func(Fragment) error

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string    // Override default model
	Tools       []ToolDef // Tools the model may request this round
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithTools(tools []ToolDef) Option {
	return func(o *Options) {
		o.Tools = tools
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full response
	Chat(ctx context.Context, history []Message, options ...Option) (*Result, error)

	// ChatStream sends a chat history and delivers the response incrementally.
	// The assembled Result is returned once the stream terminates.
	ChatStream(ctx context.Context, history []Message, handler StreamHandler, options ...Option) (*Result, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
