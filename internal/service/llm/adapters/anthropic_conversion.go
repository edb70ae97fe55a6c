package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
)

// toAnthropicMessages converts the conversation to Anthropic's alternating
// user/assistant format. Consecutive turns with the same API role are merged;
// tool results are sent as tool_result blocks inside a user message.
func toAnthropicMessages(conv *llm.Conversation, model string) ([]anthropic.MessageParam, error) {
	var (
		result  []anthropic.MessageParam
		role    llm.Role
		blocks  []anthropic.ContentBlockParamUnion
		flushed = func() {
			if len(blocks) == 0 {
				return
			}
			if role == llm.RoleAssistant {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			} else {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
			blocks = nil
		}
	)

	for i, turn := range conv.Turns() {
		apiRole := turn.Role
		if apiRole == llm.RoleTool {
			apiRole = llm.RoleUser
		}
		if apiRole != role {
			flushed()
			role = apiRole
		}

		switch turn.Role {
		case llm.RoleUser:
			if turn.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Content))
			}

		case llm.RoleAssistant:
			text := turn.Content
			// Answers persisted from other models are labeled so the model can tell them apart
			if turn.ModelID != "" && turn.ModelID != model && len(turn.ToolCalls) == 0 && text != "" {
				text = fmt.Sprintf("[%s] %s", turn.ModelID, text)
			}
			if text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range turn.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}

		case llm.RoleTool:
			if turn.ToolResult == nil {
				return nil, fmt.Errorf("turn %d: tool turn without result", i)
			}
			r := turn.ToolResult
			blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content(), r.IsError))

		default:
			return nil, fmt.Errorf("turn %d: unsupported role '%s'", i, turn.Role)
		}
	}
	flushed()

	return result, nil
}

func toAnthropicTools(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tool := &anthropic.ToolParam{
			Name: spec.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: spec.Properties(),
				Required:   spec.Required(),
			},
		}
		if spec.Description != "" {
			tool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: tool})
	}
	return tools
}

func toAnthropicToolChoice(opts domainllm.SendOptions) anthropic.ToolChoiceUnionParam {
	if opts.ToolChoice == domainllm.ToolChoiceNone {
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
	auto := &anthropic.ToolChoiceAutoParam{}
	if !opts.AllowParallelToolCalls {
		auto.DisableParallelToolUse = anthropic.Bool(true)
	}
	return anthropic.ToolChoiceUnionParam{OfAuto: auto}
}

// fromAnthropicMessage normalizes a response to text or tool calls.
// Thinking and other block types are dropped.
func fromAnthropicMessage(msg *anthropic.Message) (*domainllm.ProviderResponse, error) {
	resp := &domainllm.ProviderResponse{
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		StopReason:   string(msg.StopReason),
	}

	var texts []string
	for i, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			if block.ID == "" || block.Name == "" {
				return nil, fmt.Errorf("content block %d: tool_use without id or name", i)
			}
			args, err := parseToolInput(block.Input)
			if err != nil {
				return nil, fmt.Errorf("content block %d (%s): %w", i, block.Name, err)
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Text = strings.Join(texts, "\n\n")

	if resp.IsFinal() && resp.Text == "" && resp.StopReason != string(anthropic.StopReasonMaxTokens) {
		return nil, fmt.Errorf("response has neither text nor tool calls (stop_reason %q)", resp.StopReason)
	}
	return resp, nil
}

// parseToolInput decodes a tool_use input object. Empty input is an empty object.
func parseToolInput(raw json.RawMessage) (map[string]interface{}, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]interface{}{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("tool input is not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.Null {
		return map[string]interface{}{}, nil
	}
	if !parsed.IsObject() {
		return nil, fmt.Errorf("tool input must be a JSON object, got %s", parsed.Type)
	}
	args, _ := parsed.Value().(map[string]interface{})
	return args, nil
}
