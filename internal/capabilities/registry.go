package capabilities

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"council/internal/domain"
	domainllm "council/internal/domain/services/llm"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry maps model ids to provider and capability flags.
// It is safe for concurrent use and can be reloaded at runtime.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderCapabilities
	models    map[string]*ModelCapabilities // model id -> capabilities
}

// NewRegistry creates a registry from the embedded YAML files
func NewRegistry() (*Registry, error) {
	return NewRegistryFromFS(configFiles, "config")
}

// NewRegistryFromFS loads every *.yaml file in dir
func NewRegistryFromFS(fsys fs.FS, dir string) (*Registry, error) {
	r := &Registry{}
	if err := r.Reload(fsys, dir); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the registry contents atomically.
// On error the previous contents are kept.
func (r *Registry) Reload(fsys fs.FS, dir string) error {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("list capability files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no capability files in %s", dir)
	}
	sort.Strings(files)

	providers := make(map[string]*ProviderCapabilities, len(files))
	models := make(map[string]*ModelCapabilities)
	for _, filename := range files {
		providerCaps, err := loadProviderFile(fsys, filename)
		if err != nil {
			return err
		}
		if providerCaps.Provider == "" {
			providerCaps.Provider = strings.TrimSuffix(path.Base(filename), ".yaml")
		}
		providers[providerCaps.Provider] = providerCaps
		for i := range providerCaps.Models {
			m := &providerCaps.Models[i]
			m.Provider = providerCaps.Provider
			if existing, dup := models[m.ID]; dup {
				return fmt.Errorf("model %s declared by both %s and %s", m.ID, existing.Provider, m.Provider)
			}
			models[m.ID] = m
		}
	}

	r.mu.Lock()
	r.providers = providers
	r.models = models
	r.mu.Unlock()
	return nil
}

func loadProviderFile(fsys fs.FS, filename string) (*ProviderCapabilities, error) {
	data, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var providerCaps ProviderCapabilities
	if err := yaml.Unmarshal(data, &providerCaps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	return &providerCaps, nil
}

// GetModel returns capabilities for a model id across all providers
func (r *Registry) GetModel(modelID string) (*ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelID]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("unknown model: %s", modelID)}
	}
	copied := *m
	return &copied, nil
}

// GetModelCapabilities returns capabilities for a specific provider model
func (r *Registry) GetModelCapabilities(provider, model string) (*ModelCapabilities, error) {
	m, err := r.GetModel(model)
	if err != nil {
		return nil, err
	}
	if m.Provider != provider {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("unknown model %s for provider %s", model, provider)}
	}
	return m, nil
}

// ListProviderModels returns all models for a provider (ordered as defined in YAML)
func (r *Registry) ListProviderModels(provider string) ([]ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	out := make([]ModelCapabilities, len(providerCaps.Models))
	copy(out, providerCaps.Models)
	return out, nil
}

// GetAllProviders returns the registered provider names, sorted
func (r *Registry) GetAllProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.providers))
	for provider := range r.providers {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers
}

// Flags converts registry metadata to the flags the agentic loop consults.
func (m *ModelCapabilities) Flags() *domainllm.ModelCapabilities {
	return &domainllm.ModelCapabilities{
		ModelID:           m.ID,
		Provider:          m.Provider,
		FunctionCalling:   m.SupportsTools,
		ParallelToolCalls: m.SupportsTools && m.SupportsParallelTools,
		Streaming:         m.SupportsStreaming,
		Vision:            m.SupportsVision,
		ContextWindow:     m.ContextWindow,
		MaxOutput:         m.MaxOutput,
	}
}
