package llm

import (
	"fmt"
	"log/slog"
	"sync"

	"council/internal/capabilities"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/adapters"
)

// ProviderRegistry resolves model ids to rate-limited, retrying adapters.
// Adapters are created once per provider; the resilience wrapper is per model
// because rate limits are configured per model.
type ProviderRegistry struct {
	factory      *AdapterFactory
	capabilities *capabilities.Registry
	retry        adapters.RetryPolicy
	logger       *slog.Logger

	mu       sync.RWMutex
	adapters map[string]domainllm.Provider // by provider name
	models   map[string]domainllm.Provider // by model id
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(factory *AdapterFactory, caps *capabilities.Registry, retry adapters.RetryPolicy, logger *slog.Logger) *ProviderRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderRegistry{
		factory:      factory,
		capabilities: caps,
		retry:        retry,
		logger:       logger,
		adapters:     make(map[string]domainllm.Provider),
		models:       make(map[string]domainllm.Provider),
	}
}

// Resolve implements ProviderResolver.
// Unknown models return a *domain.NotFoundError from the capability registry.
func (r *ProviderRegistry) Resolve(modelID string) (domainllm.Provider, *domainllm.ModelCapabilities, error) {
	model, err := r.capabilities.GetModel(modelID)
	if err != nil {
		return nil, nil, err
	}
	flags := model.Flags()

	// Fast path: check cache with read lock
	r.mu.RLock()
	if cached, exists := r.models[modelID]; exists {
		r.mu.RUnlock()
		return cached, flags, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check cache after acquiring write lock
	if cached, exists := r.models[modelID]; exists {
		return cached, flags, nil
	}

	adapter, exists := r.adapters[model.Provider]
	if !exists {
		adapter, err = r.factory.CreateAdapter(model.Provider)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create provider '%s': %w", model.Provider, err)
		}
		r.adapters[model.Provider] = adapter
	}

	provider := adapters.NewResilientProvider(
		adapter,
		model.RateLimit.RequestsPerMinute,
		model.RateLimit.Burst,
		r.retry,
		r.logger.With("model", modelID),
	)
	r.models[modelID] = provider
	return provider, flags, nil
}

// Validate checks if the registry is properly configured.
// Should be called at startup to fail fast if misconfigured.
func (r *ProviderRegistry) Validate() error {
	if r.factory == nil {
		return fmt.Errorf("adapter factory is not configured")
	}
	if r.capabilities == nil {
		return fmt.Errorf("capability registry is not configured")
	}
	return nil
}
