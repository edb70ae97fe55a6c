package adapters

import (
	"context"
	"fmt"
	"strings"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
)

// textGenerator is the part of llmprovider.Provider the library adapter uses.
type textGenerator interface {
	GenerateResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error)
}

// LibraryAdapter wraps a meridian-llm-go provider (OpenRouter, Lorem).
// It is text-only: tool declarations are never sent, and models routed here
// are registered without function calling.
type LibraryAdapter struct {
	name     string
	provider textGenerator
}

// NewLibraryAdapter creates an adapter from an existing library provider.
func NewLibraryAdapter(provider llmprovider.Provider) *LibraryAdapter {
	return &LibraryAdapter{
		name:     provider.Name().String(),
		provider: provider,
	}
}

// Name returns the provider name.
func (a *LibraryAdapter) Name() string {
	return a.name
}

// Send generates one textual response.
func (a *LibraryAdapter) Send(ctx context.Context, req *domainllm.SendRequest) (*domainllm.ProviderResponse, error) {
	if len(req.Tools) > 0 && req.Options.ToolChoice != domainllm.ToolChoiceNone {
		return nil, invalidRequest(a.name, req.Model, fmt.Errorf("provider %s does not support tool calls", a.name))
	}

	libReq := toLibraryRequest(req)

	callCtx, cancel := callContext(ctx, req.Options.Timeout)
	defer cancel()

	libResp, err := a.provider.GenerateResponse(callCtx, libReq)
	if err != nil {
		return nil, classifyError(a.name, req.Model, err)
	}
	if libResp == nil {
		return nil, malformed(a.name, req.Model, fmt.Errorf("empty response"))
	}

	return fromLibraryResponse(libResp, req.Model), nil
}

// toLibraryRequest flattens the conversation into text blocks. Tool turns
// cannot occur for text-only models but are rendered as text if present in history.
func toLibraryRequest(req *domainllm.SendRequest) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, 0, req.Conversation.Len())
	for _, turn := range req.Conversation.Turns() {
		role := string(turn.Role)
		text := turn.Content
		switch turn.Role {
		case llm.RoleTool:
			role = string(llm.RoleUser)
			text = fmt.Sprintf("[tool result %s] %s", turn.ToolResult.ToolCallID, turn.Content)
		case llm.RoleAssistant:
			if turn.ModelID != "" && turn.ModelID != req.Model {
				text = fmt.Sprintf("[%s] %s", turn.ModelID, text)
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		messages = append(messages, llmprovider.Message{
			Role: role,
			Blocks: []*llmprovider.Block{{
				BlockType:   "text",
				Sequence:    0,
				TextContent: &text,
			}},
		})
	}

	libReq := &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    req.Model,
	}
	if req.Conversation.System != "" {
		system := req.Conversation.System
		libReq.Params = &llmprovider.RequestParams{System: &system}
	}
	return libReq
}

func fromLibraryResponse(resp *llmprovider.GenerateResponse, requested string) *domainllm.ProviderResponse {
	var texts []string
	for _, block := range resp.Blocks {
		if block == nil || block.BlockType != "text" || block.TextContent == nil {
			continue
		}
		texts = append(texts, *block.TextContent)
	}

	model := resp.Model
	if model == "" {
		model = requested
	}
	return &domainllm.ProviderResponse{
		Text:         strings.Join(texts, ""),
		Model:        model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		StopReason:   resp.StopReason,
	}
}
