package tools

import (
	"errors"
	"fmt"
	"sync"

	"council/internal/domain/models/llm"
)

// Definition declares a tool to models and to the executor.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema object

	// Mutating tools change externally persisted data. Their effects are
	// routed through the approval gate instead of being applied.
	Mutating bool

	// Reentrant tools may run concurrently with other calls to themselves.
	// Calls to a non-reentrant tool within one iteration run one at a time.
	Reentrant bool
}

// Spec returns the provider-facing declaration.
func (d Definition) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

type registeredTool struct {
	def      Definition
	executor ToolExecutor
}

// ToolRegistry maps tool names to executors and schemas.
// It is thread-safe and can be used concurrently.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string // registration order, for stable tool lists
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool. Names must be unique.
func (r *ToolRegistry) Register(def Definition, executor ToolExecutor) error {
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if executor == nil {
		return fmt.Errorf("tool %s: executor is required", def.Name)
	}
	if def.Parameters == nil {
		def.Parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, executor: executor}
	r.order = append(r.order, def.Name)
	return nil
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (Definition, ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return Definition{}, nil, false
	}
	return t.def, t.executor, true
}

// Specs returns every tool declaration in registration order.
func (r *ToolRegistry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].def.Spec())
	}
	return specs
}

// Names returns registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
