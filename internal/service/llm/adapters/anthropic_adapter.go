package adapters

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	domainllm "council/internal/domain/services/llm"
)

const defaultMaxTokens = 4096

// AnthropicAdapter implements Provider for Claude models with native tool use.
type AnthropicAdapter struct {
	client *anthropic.Client
}

// NewAnthropicAdapter creates an adapter with the given API key.
// SDK-level retries are disabled; ResilientProvider owns the retry policy.
func NewAnthropicAdapter(apiKey string, opts ...option.RequestOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicAdapter{client: &client}, nil
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Send performs one Messages API round-trip.
func (a *AnthropicAdapter) Send(ctx context.Context, req *domainllm.SendRequest) (*domainllm.ProviderResponse, error) {
	messages, err := toAnthropicMessages(req.Conversation, req.Model)
	if err != nil {
		return nil, invalidRequest(a.Name(), req.Model, err)
	}

	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.Conversation.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Conversation.System}}
	}
	// Tools stay declared on forced-final calls so earlier tool_use blocks remain valid
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
		params.ToolChoice = toAnthropicToolChoice(req.Options)
	}

	callCtx, cancel := callContext(ctx, req.Options.Timeout)
	defer cancel()

	message, err := a.client.Messages.New(callCtx, params)
	if err != nil {
		return nil, classifyError(a.Name(), req.Model, err)
	}

	resp, err := fromAnthropicMessage(message)
	if err != nil {
		return nil, malformed(a.Name(), req.Model, err)
	}
	return resp, nil
}
