package turn

import (
	"encoding/json"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/pkg/store"
)

// EventType tags the closed set of stream event variants.
type EventType string

const (
	EventStart    EventType = "start"
	EventContent  EventType = "content"
	EventToolCall EventType = "tool_call"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// Event is one frame of the caller-visible turn protocol. Exactly one
// start is emitted first and exactly one end is emitted last, on every
// path. Only the fields matching the Type are set.
type Event struct {
	Type       EventType
	Content    string
	ToolName   string
	ToolResult any
	Response   *Response
	Err        string
}

// Usage aggregates token consumption across all generation rounds of a
// turn. LoopTruncated marks a turn that hit the round cap.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	LoopTruncated    bool `json:"loop_truncated,omitempty"`
}

// ToolCallSummary reports the turn's tool activity.
type ToolCallSummary struct {
	Rounds int `json:"rounds"`
	Calls  int `json:"calls"`
	Failed int `json:"failed"`
}

// Response is the final payload of a resolved turn.
type Response struct {
	AiMessage       *entity.Message      `json:"ai_message"`
	Conversation    *entity.Conversation `json:"conversation"`
	Usage           *Usage               `json:"usage,omitempty"`
	RagContext      []store.Passage      `json:"rag_context,omitempty"`
	ToolCallSummary *ToolCallSummary     `json:"tool_call_summary,omitempty"`
	ResponseTimeMs  int64                `json:"response_time_ms,omitempty"`
}

func StartEvent() Event {
	return Event{Type: EventStart}
}

func ContentEvent(text string) Event {
	return Event{Type: EventContent, Content: text}
}

func ToolCallEvent(name string, result any) Event {
	return Event{Type: EventToolCall, ToolName: name, ToolResult: result}
}

func CompleteEvent(resp *Response) Event {
	return Event{Type: EventComplete, Response: resp}
}

func ErrorEvent(reason string) Event {
	return Event{Type: EventError, Err: reason}
}

func EndEvent() Event {
	return Event{Type: EventEnd}
}

// Frame encodes the event as one newline-terminated JSON wire frame.
func (e Event) Frame() ([]byte, error) {
	var frame any
	switch e.Type {
	case EventContent:
		frame = struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content}
	case EventToolCall:
		frame = struct {
			Type   EventType `json:"type"`
			Tool   string    `json:"tool"`
			Result any       `json:"result"`
		}{e.Type, e.ToolName, e.ToolResult}
	case EventComplete:
		frame = struct {
			Type     EventType `json:"type"`
			Response *Response `json:"response"`
		}{e.Type, e.Response}
	case EventError:
		frame = struct {
			Type  EventType `json:"type"`
			Error string    `json:"error"`
		}{e.Type, e.Err}
	default: // start, end
		frame = struct {
			Type EventType `json:"type"`
		}{e.Type}
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}
