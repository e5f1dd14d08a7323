package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/store"
)

// Typed invocation failures. All three are folded into a failed
// ToolCallResult by Invoke and never surfaced as a turn-level fault.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolTimeout   = errors.New("tool timed out")
	ErrToolExecution = errors.New("tool execution failed")
)

// Invoker executes tool calls against the registry with a per-call timeout.
// Safe to call concurrently for multiple requests from the same round.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
}

func NewInvoker(registry *Registry, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Invoker{
		registry: registry,
		timeout:  timeout,
	}
}

// Invoke runs one tool call and always returns a settled result; failures
// are recorded in the result's Error field.
func (inv *Invoker) Invoke(ctx context.Context, call llm.ToolCall) store.ToolCallResult {
	started := time.Now()
	result := store.ToolCallResult{
		CallId: call.Id,
		Name:   call.Name,
	}

	tool, ok := inv.registry.Get(call.Name)
	if !ok {
		result.Error = fmt.Errorf("%w: %s", ErrToolNotFound, call.Name).Error()
		result.Elapsed = time.Since(started)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	output, err := tool.Call(callCtx, call.Arguments)
	result.Elapsed = time.Since(started)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			result.Error = fmt.Errorf("%w: %s after %s", ErrToolTimeout, call.Name, inv.timeout).Error()
		} else {
			result.Error = fmt.Errorf("%w: %v", ErrToolExecution, err).Error()
		}
		return result
	}

	result.Output = output
	return result
}
