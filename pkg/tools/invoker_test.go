package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-assistant-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (s *stubTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return s.fn(ctx, args)
}

func TestInvokeSuccess(t *testing.T) {
	registry := NewRegistry(&stubTool{
		name: "echo",
		fn: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args["value"]}, nil
		},
	})
	inv := NewInvoker(registry, time.Second)

	result := inv.Invoke(context.Background(), llm.ToolCall{
		Id:        "c1",
		Name:      "echo",
		Arguments: map[string]any{"value": "hi"},
	})

	assert.False(t, result.Failed())
	assert.Equal(t, "c1", result.CallId)
	assert.Equal(t, "echo", result.Name)
	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", output["echo"])
}

func TestInvokeUnknownTool(t *testing.T) {
	inv := NewInvoker(NewRegistry(), time.Second)

	result := inv.Invoke(context.Background(), llm.ToolCall{Id: "c1", Name: "nope"})

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, ErrToolNotFound.Error())
	assert.Contains(t, result.Error, "nope")
}

func TestInvokeExecutionFailure(t *testing.T) {
	registry := NewRegistry(&stubTool{
		name: "boom",
		fn: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("backend exploded")
		},
	})
	inv := NewInvoker(registry, time.Second)

	result := inv.Invoke(context.Background(), llm.ToolCall{Id: "c1", Name: "boom"})

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, ErrToolExecution.Error())
	assert.Contains(t, result.Error, "backend exploded")
	assert.Nil(t, result.Output)
}

func TestInvokeTimeout(t *testing.T) {
	registry := NewRegistry(&stubTool{
		name: "slow",
		fn: func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	inv := NewInvoker(registry, 50*time.Millisecond)

	result := inv.Invoke(context.Background(), llm.ToolCall{Id: "c1", Name: "slow"})

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, ErrToolTimeout.Error())
	assert.GreaterOrEqual(t, result.Elapsed, 50*time.Millisecond)
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	registry := NewRegistry(
		&stubTool{name: "zebra", fn: func(context.Context, map[string]any) (any, error) { return nil, nil }},
		&stubTool{name: "alpha", fn: func(context.Context, map[string]any) (any, error) { return nil, nil }},
	)

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zebra", defs[1].Name)
}
