package llm

import (
	"fmt"
	"sort"
	"strings"

	domainllm "council/internal/domain/services/llm"
)

// AdapterCreatorFunc creates a provider adapter.
type AdapterCreatorFunc func() (domainllm.Provider, error)

// AdapterFactory creates provider adapters by provider name.
// New providers are added with Register without touching the registry.
type AdapterFactory struct {
	creators map[string]AdapterCreatorFunc
}

// NewAdapterFactory creates an empty factory.
func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{creators: make(map[string]AdapterCreatorFunc)}
}

// Register adds or replaces the creator for a provider.
func (f *AdapterFactory) Register(providerName string, creator AdapterCreatorFunc) {
	f.creators[providerName] = creator
}

// CreateAdapter creates an adapter for the given provider.
func (f *AdapterFactory) CreateAdapter(providerName string) (domainllm.Provider, error) {
	creator, exists := f.creators[providerName]
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s (supported: %s)", providerName, strings.Join(f.Providers(), ", "))
	}
	return creator()
}

// Providers returns the registered provider names, sorted.
func (f *AdapterFactory) Providers() []string {
	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
