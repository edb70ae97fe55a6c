package llm

import (
	"fmt"
	"log/slog"

	"council/internal/capabilities"
	"council/internal/config"
	"council/internal/service/llm/adapters"
)

// SetupProviders initializes the adapter factory and provider registry.
// Returns a configured ProviderRegistry or an error if setup fails.
func SetupProviders(cfg *config.Config, caps *capabilities.Registry, logger *slog.Logger) (*ProviderRegistry, error) {
	factory := NewDefaultAdapterFactory(cfg)
	registry := NewProviderRegistry(factory, caps, adapters.DefaultRetryPolicy(cfg.ProviderMaxRetries), logger)

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("provider registry validation failed: %w", err)
	}

	if cfg.AnthropicAPIKey == "" {
		logger.Warn("ANTHROPIC_API_KEY not set - Anthropic provider not available")
	}
	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_API_KEY not set - OpenRouter provider not available")
	}
	for _, name := range AvailableProviders(cfg) {
		logger.Info("provider available", "name", name)
	}

	for _, name := range caps.GetAllProviders() {
		models, _ := caps.ListProviderModels(name)
		logger.Debug("models registered", "provider", name, "count", len(models))
	}

	return registry, nil
}

// AvailableProviders returns the providers whose credentials are configured.
func AvailableProviders(cfg *config.Config) []string {
	var names []string
	if cfg.AnthropicAPIKey != "" {
		names = append(names, "anthropic")
	}
	names = append(names, "lorem")
	if cfg.OpenRouterAPIKey != "" {
		names = append(names, "openrouter")
	}
	return names
}
