package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendAssistantRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name  string
		prior []ToolCall
		calls []ToolCall
	}{
		{"missing id", nil, []ToolCall{{Name: "echo"}}},
		{"duplicate within batch", nil, []ToolCall{{ID: "a", Name: "echo"}, {ID: "a", Name: "echo"}}},
		{"reused from earlier turn", []ToolCall{{ID: "a", Name: "echo"}}, []ToolCall{{ID: "a", Name: "echo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConversation("", nil)
			conv.AppendUser("hi")
			if tt.prior != nil {
				require.NoError(t, conv.AppendAssistant("m", "", tt.prior))
			}
			before := conv.Len()

			assert.Error(t, conv.AppendAssistant("m", "", tt.calls))
			assert.Equal(t, before, conv.Len())
		})
	}
}

func TestConversation_ToolResultsMustAnswerCalls(t *testing.T) {
	conv := NewConversation("", nil)
	conv.AppendUser("hi")
	require.NoError(t, conv.AppendAssistant("m", "", []ToolCall{{ID: "a", Name: "echo"}, {ID: "b", Name: "echo"}}))

	assert.Error(t, conv.AppendToolResults([]ToolResult{{ToolCallID: "zzz"}}))
	assert.Error(t, conv.AppendToolResults([]ToolResult{{ToolCallID: "a"}, {ToolCallID: "a"}}))
	require.NoError(t, conv.AppendToolResults([]ToolResult{{ToolCallID: "a"}, {ToolCallID: "b"}}))
	assert.Error(t, conv.AppendToolResults([]ToolResult{{ToolCallID: "a"}}), "already answered")
	assert.Equal(t, 4, conv.Len())
}
