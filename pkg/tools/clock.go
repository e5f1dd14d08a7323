package tools

import (
	"context"
	"fmt"
	"time"
)

// ClockTool reports the current date and time, optionally in a named
// IANA timezone.
type ClockTool struct {
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewClockTool() *ClockTool {
	return &ClockTool{Now: time.Now}
}

func (t *ClockTool) Name() string { return "current_time" }

func (t *ClockTool) Description() string {
	return "Returns the current date and time. Accepts an optional IANA timezone like \"Asia/Jakarta\"."
}

func (t *ClockTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "Optional IANA timezone name",
			},
		},
	}
}

func (t *ClockTool) Call(_ context.Context, args map[string]any) (any, error) {
	now := t.Now()
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", tz)
		}
		now = now.In(loc)
	}
	return map[string]any{
		"iso":      now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
	}, nil
}
