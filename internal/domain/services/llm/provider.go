package llm

import (
	"context"
	"time"

	"council/internal/domain/models/llm"
)

// Provider normalizes one provider's chat API behind a uniform contract.
// Implementations are a closed set of adapters (see service/llm/adapters);
// loop logic never branches on provider name.
type Provider interface {
	// Send performs one model round-trip for the conversation.
	// Failures are returned as *domain.ProviderError.
	Send(ctx context.Context, req *SendRequest) (*ProviderResponse, error)

	// Name returns the provider name (e.g., "anthropic", "openrouter")
	Name() string
}

// ToolChoice is the tool-choice policy for one call.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide; the engine never forces a tool call.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables tool use and requires a textual answer.
	ToolChoiceNone ToolChoice = "none"
)

// SendOptions controls a single provider call.
type SendOptions struct {
	ToolChoice             ToolChoice
	AllowParallelToolCalls bool

	// Timeout bounds this round-trip only. Zero means no per-call timeout.
	Timeout time.Duration

	// MaxTokens caps the response. Zero uses the adapter default.
	MaxTokens int

	// Idempotent marks the request as safe to retry on transport failures.
	Idempotent bool
}

// SendRequest contains everything a provider needs for one round-trip.
type SendRequest struct {
	// Model is the provider model identifier (e.g., "claude-haiku-4-5-20251001")
	Model string

	Conversation *llm.Conversation
	Tools        []llm.ToolSpec
	Options      SendOptions
}

// ProviderResponse is either a final answer or a non-empty set of tool calls.
// When ToolCalls is non-empty, Text is advisory only.
type ProviderResponse struct {
	Text      string
	ToolCalls []llm.ToolCall

	// Model is the model that was used (may differ from request if aliased)
	Model        string
	InputTokens  int
	OutputTokens int

	// StopReason indicates why generation stopped (e.g., "end_turn", "tool_use")
	StopReason string
}

// IsFinal reports whether the response is a final textual answer.
func (r *ProviderResponse) IsFinal() bool {
	return len(r.ToolCalls) == 0
}

// ModelCapabilities is the subset of registry flags the loop consults.
type ModelCapabilities struct {
	ModelID           string
	Provider          string
	FunctionCalling   bool
	ParallelToolCalls bool
	Streaming         bool
	Vision            bool
	ContextWindow     int
	MaxOutput         int
}

// ProviderResolver maps a model id to its adapter and capabilities.
type ProviderResolver interface {
	Resolve(modelID string) (Provider, *ModelCapabilities, error)
}
