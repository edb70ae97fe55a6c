package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role tags a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured tool invocation requested by a model.
type ToolCall struct {
	ID        string                 `json:"id"`   // provider-issued tool_use id
	Name      string                 `json:"name"` // registered tool name
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult answers exactly one ToolCall.
type ToolResult struct {
	ToolCallID string      `json:"tool_call_id"`
	Name       string      `json:"name"`
	Output     interface{} `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	IsError    bool        `json:"is_error"`

	// Err keeps the typed failure for callers; the model only sees Error.
	Err error `json:"-"`
}

// Content renders the result as the text block sent back to the model.
func (r ToolResult) Content() string {
	if r.IsError {
		return r.Error
	}
	switch v := r.Output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Turn is one role-tagged unit of conversation content.
//
// Assistant turns may carry ToolCalls; tool turns carry exactly one ToolResult.
type Turn struct {
	ID         string      `json:"id,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ModelID    string      `json:"model_id,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Conversation is the append-only turn sequence owned by one agentic loop.
// It is not safe for concurrent use; each loop works on its own Clone.
type Conversation struct {
	System string

	turns []Turn
	// calls tracks tool-call ids issued by assistant turns, true once answered.
	calls map[string]bool
}

// NewConversation seeds a conversation from persisted history.
// Tool turns whose call id is not issued by an earlier assistant turn are dropped.
func NewConversation(system string, history []Turn) *Conversation {
	c := &Conversation{
		System: system,
		turns:  make([]Turn, 0, len(history)+1),
		calls:  make(map[string]bool),
	}
	for _, t := range history {
		switch t.Role {
		case RoleTool:
			if t.ToolResult == nil {
				continue
			}
			if answered, ok := c.calls[t.ToolResult.ToolCallID]; !ok || answered {
				continue
			}
			c.calls[t.ToolResult.ToolCallID] = true
		case RoleAssistant:
			for _, call := range t.ToolCalls {
				c.calls[call.ID] = false
			}
		}
		c.turns = append(c.turns, t)
	}
	return c
}

// Turns returns a copy of the turn sequence.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// AppendUser appends a user turn.
func (c *Conversation) AppendUser(content string) {
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()})
}

// AppendAssistant appends an assistant turn and registers its tool calls.
// Nothing is appended if any call lacks an id or reuses one, within the batch
// or from an earlier turn.
func (c *Conversation) AppendAssistant(modelID, content string, calls []ToolCall) error {
	seen := make(map[string]bool, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return fmt.Errorf("tool call %q has no id", call.Name)
		}
		if _, dup := c.calls[call.ID]; dup || seen[call.ID] {
			return fmt.Errorf("duplicate tool call id %s", call.ID)
		}
		seen[call.ID] = true
	}
	for _, call := range calls {
		c.calls[call.ID] = false
	}
	c.turns = append(c.turns, Turn{
		Role:      RoleAssistant,
		Content:   content,
		ModelID:   modelID,
		ToolCalls: calls,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// AppendToolResults appends one tool turn per result. Every result must answer a
// call issued by a preceding assistant turn that has not been answered yet.
// Nothing is appended if any result is invalid.
func (c *Conversation) AppendToolResults(results []ToolResult) error {
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		answered, ok := c.calls[r.ToolCallID]
		if !ok {
			return fmt.Errorf("tool result references unknown call id %s", r.ToolCallID)
		}
		if answered || seen[r.ToolCallID] {
			return fmt.Errorf("tool call %s already has a result", r.ToolCallID)
		}
		seen[r.ToolCallID] = true
	}

	now := time.Now().UTC()
	for _, r := range results {
		result := r
		c.calls[r.ToolCallID] = true
		c.turns = append(c.turns, Turn{
			Role:       RoleTool,
			Content:    result.Content(),
			ToolResult: &result,
			CreatedAt:  now,
		})
	}
	return nil
}

// PendingCalls returns the ids of tool calls still lacking a result.
func (c *Conversation) PendingCalls() []string {
	var ids []string
	for _, t := range c.turns {
		for _, call := range t.ToolCalls {
			if !c.calls[call.ID] {
				ids = append(ids, call.ID)
			}
		}
	}
	return ids
}

// LastUserMessage returns the content of the most recent user turn.
func (c *Conversation) LastUserMessage() string {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == RoleUser {
			return c.turns[i].Content
		}
	}
	return ""
}

// Clone returns an independent copy. Tool call slices are shared read-only.
func (c *Conversation) Clone() *Conversation {
	calls := make(map[string]bool, len(c.calls))
	for k, v := range c.calls {
		calls[k] = v
	}
	return &Conversation{
		System: c.System,
		turns:  c.Turns(),
		calls:  calls,
	}
}
