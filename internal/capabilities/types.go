package capabilities

import "gopkg.in/yaml.v3"

// RateLimit bounds how often a model may be called from this process.
// Zero RequestsPerMinute means unlimited.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// ModelCapabilities represents all metadata for a specific model
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Provider name (set during YAML unmarshaling from the file's provider field)
	Provider string `yaml:"-" json:"provider"`

	// Display information
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// Core capabilities. SupportsTools gates the agentic loop: models without
	// function calling run single-shot.
	SupportsTools         bool `yaml:"supports_tools" json:"supports_tools"`
	SupportsParallelTools bool `yaml:"supports_parallel_tools" json:"supports_parallel_tools"`
	SupportsStreaming     bool `yaml:"supports_streaming" json:"supports_streaming"`
	SupportsVision        bool `yaml:"supports_vision" json:"supports_vision"`

	// Limits
	ContextWindow int       `yaml:"context_window" json:"context_window"`
	MaxOutput     int       `yaml:"max_output" json:"max_output"`
	RateLimit     RateLimit `yaml:"rate_limit" json:"rate_limit"`
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string              `yaml:"provider" json:"provider"`
	Models   []ModelCapabilities `yaml:"-" json:"models"` // Ordered slice, populated by custom unmarshaler
}

// UnmarshalYAML preserves model order from the YAML file
func (p *ProviderCapabilities) UnmarshalYAML(node *yaml.Node) error {
	type modelsOnly struct {
		Provider string                       `yaml:"provider"`
		Models   map[string]ModelCapabilities `yaml:"models"`
	}
	var m modelsOnly
	if err := node.Decode(&m); err != nil {
		return err
	}
	p.Provider = m.Provider

	// node.Content alternates key, value, key, value...
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "models" {
			continue
		}
		modelsNode := node.Content[i+1]
		for j := 0; j+1 < len(modelsNode.Content); j += 2 {
			modelID := modelsNode.Content[j].Value
			if model, ok := m.Models[modelID]; ok {
				model.ID = modelID
				model.Provider = m.Provider
				p.Models = append(p.Models, model)
			}
		}
		break
	}

	return nil
}
