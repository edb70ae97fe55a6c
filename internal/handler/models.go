package handler

import (
	"log/slog"
	"net/http"

	"council/internal/capabilities"
	"council/internal/httputil"
)

// ModelsHandler handles HTTP requests for model capabilities
type ModelsHandler struct {
	registry  *capabilities.Registry
	available map[string]bool
	defaults  []string
	logger    *slog.Logger
}

// NewModelsHandler creates a new models handler. available lists the
// providers that have an adapter configured.
func NewModelsHandler(registry *capabilities.Registry, available []string, defaults []string, logger *slog.Logger) *ModelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]bool, len(available))
	for _, p := range available {
		set[p] = true
	}
	return &ModelsHandler{registry: registry, available: set, defaults: defaults, logger: logger}
}

// ProviderResponse represents a provider with its models
type ProviderResponse struct {
	ID        string          `json:"id"`
	Available bool            `json:"available"`
	Models    []ModelResponse `json:"models"`
}

// ModelResponse represents a model's capabilities for the API response
type ModelResponse struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	ContextWindow int    `json:"context_window"`
	MaxOutput     int    `json:"max_output"`
	// Tools is false for models that answer single-shot without the tool loop
	Tools         bool `json:"tools"`
	ParallelTools bool `json:"parallel_tools"`
	Vision        bool `json:"vision"`
	Default       bool `json:"default"`
}

// ListModels returns every registered model grouped by provider
// GET /api/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	defaults := make(map[string]bool, len(h.defaults))
	for _, id := range h.defaults {
		defaults[id] = true
	}

	providers := make([]ProviderResponse, 0)
	for _, name := range h.registry.GetAllProviders() {
		models, err := h.registry.ListProviderModels(name)
		if err != nil {
			h.logger.Warn("failed to list provider models", "provider", name, "error", err)
			continue
		}

		resp := ProviderResponse{ID: name, Available: h.available[name], Models: make([]ModelResponse, 0, len(models))}
		for _, m := range models {
			resp.Models = append(resp.Models, ModelResponse{
				ID:            m.ID,
				DisplayName:   m.DisplayName,
				ContextWindow: m.ContextWindow,
				MaxOutput:     m.MaxOutput,
				Tools:         m.SupportsTools,
				ParallelTools: m.SupportsParallelTools,
				Vision:        m.SupportsVision,
				Default:       defaults[m.ID],
			})
		}
		providers = append(providers, resp)
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"providers":      providers,
		"default_models": h.defaults,
	})
}
