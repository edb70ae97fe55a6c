package llm

import (
	"fmt"

	"github.com/haowjy/meridian-llm-go/providers/lorem"
	"github.com/haowjy/meridian-llm-go/providers/openrouter"

	"council/internal/config"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/adapters"
)

// NewDefaultAdapterFactory registers the standard providers.
//
// Supported providers:
//   - "anthropic" - Claude models via the Anthropic Messages API, with tool use
//   - "openrouter" - Multiple vendors via OpenRouter, text only
//   - "lorem" - Mock provider for development (no API key required), text only
func NewDefaultAdapterFactory(cfg *config.Config) *AdapterFactory {
	f := NewAdapterFactory()

	f.Register("anthropic", func() (domainllm.Provider, error) {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		adapter, err := adapters.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
		}
		return adapter, nil
	})

	f.Register("openrouter", func() (domainllm.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
		}
		provider, err := openrouter.NewProvider(cfg.OpenRouterAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenRouter provider: %w", err)
		}
		return adapters.NewLibraryAdapter(provider), nil
	})

	// Lorem requires no API key - it's a testing provider that generates lorem ipsum text
	f.Register("lorem", func() (domainllm.Provider, error) {
		return adapters.NewLibraryAdapter(lorem.NewProvider()), nil
	})

	return f
}
