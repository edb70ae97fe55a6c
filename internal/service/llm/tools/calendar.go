package tools

import (
	"context"
	"fmt"
	"time"

	"council/internal/service/llm/tools/external"
)

// CalendarTool implements the 'calendar_lookup' tool.
type CalendarTool struct {
	client external.CalendarClient
	config *ToolConfig
	now    func() time.Time
}

// NewCalendarTool creates a new CalendarTool instance.
func NewCalendarTool(client external.CalendarClient, config *ToolConfig) *CalendarTool {
	if config == nil {
		config = DefaultToolConfig()
	}
	return &CalendarTool{client: client, config: config, now: time.Now}
}

// CalendarToolDefinition declares calendar_lookup.
func CalendarToolDefinition() Definition {
	return Definition{
		Name:        "calendar_lookup",
		Description: "List events on the user's primary calendar between two times (RFC 3339). Defaults to the next 7 days.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"time_min": map[string]interface{}{"type": "string", "description": "Start, e.g. 2025-03-01T00:00:00Z. Defaults to now."},
				"time_max": map[string]interface{}{"type": "string", "description": "End, exclusive."},
				"query":    map[string]interface{}{"type": "string", "description": "Free-text filter on event fields."},
				"max_results": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"maximum": 50,
				},
			},
			"required": []string{},
		},
		Reentrant: true,
	}
}

// Execute implements ToolExecutor interface.
// Returns:
//   - {events: [...], event_count: int, time_min: string, time_max: string}
func (t *CalendarTool) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	timeMin := t.now().UTC()
	if s := stringArg(inv.Input, "time_min"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, toolError(inv, "INVALID_TIME", fmt.Sprintf("time_min must be RFC 3339: %v", err))
		}
		timeMin = parsed
	}

	timeMax := timeMin.AddDate(0, 0, t.config.CalendarDefaultRange)
	if s := stringArg(inv.Input, "time_max"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, toolError(inv, "INVALID_TIME", fmt.Sprintf("time_max must be RFC 3339: %v", err))
		}
		timeMax = parsed
	}
	if !timeMax.After(timeMin) {
		return nil, toolError(inv, "INVALID_RANGE", "time_max must be after time_min")
	}

	events, err := t.client.ListEvents(ctx, inv.UserID, external.EventQuery{
		TimeMin:    timeMin,
		TimeMax:    timeMax,
		Text:       stringArg(inv.Input, "query"),
		MaxResults: clampedIntArg(inv.Input, "max_results", t.config.CalendarDefaultLimit, t.config.CalendarMaxLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("calendar lookup failed: %w", err)
	}

	return Output(map[string]interface{}{
		"events":      events,
		"event_count": len(events),
		"time_min":    timeMin.Format(time.RFC3339),
		"time_max":    timeMax.Format(time.RFC3339),
	}), nil
}
