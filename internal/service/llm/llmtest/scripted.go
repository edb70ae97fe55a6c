// Package llmtest provides scripted providers for exercising the loop,
// fan-out, and consensus layers without network access.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"council/internal/domain"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
)

// Step is one scripted reply.
type Step struct {
	Response *domainllm.ProviderResponse
	Err      error
	// Delay blocks before replying; a context that ends first wins.
	Delay time.Duration
}

// Text returns a final-answer step.
func Text(s string) Step {
	return Step{Response: &domainllm.ProviderResponse{Text: s, StopReason: "end_turn"}}
}

// Calls returns a step requesting tool calls.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: &domainllm.ProviderResponse{ToolCalls: calls, StopReason: "tool_use"}}
}

// Fail returns an error step.
func Fail(err error) Step {
	return Step{Err: err}
}

// Slow delays a step.
func Slow(d time.Duration, s Step) Step {
	s.Delay = d
	return s
}

// Call builds a tool call.
func Call(id, name string, args map[string]interface{}) llm.ToolCall {
	if args == nil {
		args = map[string]interface{}{}
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

// Recorded is a snapshot of one Send call.
type Recorded struct {
	Model     string
	Turns     []llm.Turn
	System    string
	ToolNames []string
	Options   domainllm.SendOptions
}

// ScriptedProvider replays steps in order. Once the script is used up the
// last step repeats, or an error is returned if Strict is set.
type ScriptedProvider struct {
	name   string
	Strict bool

	mu       sync.Mutex
	steps    []Step
	generate func(n int) Step
	next     int
	calls    []Recorded
}

// NewScriptedProvider creates a scripted provider.
func NewScriptedProvider(name string, steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{name: name, steps: steps}
}

// NewGeneratedProvider creates a provider whose nth call (1-based) replies with gen(n).
func NewGeneratedProvider(name string, gen func(n int) Step) *ScriptedProvider {
	return &ScriptedProvider{name: name, generate: gen}
}

// Name implements Provider.
func (p *ScriptedProvider) Name() string { return p.name }

// Send implements Provider.
func (p *ScriptedProvider) Send(ctx context.Context, req *domainllm.SendRequest) (*domainllm.ProviderResponse, error) {
	step, err := p.record(req)
	if err != nil {
		return nil, err
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			kind := domain.ProviderErrorNetwork
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = domain.ProviderErrorTimeout
			}
			return nil, &domain.ProviderError{Provider: p.name, Model: req.Model, Kind: kind, Err: ctx.Err()}
		}
	}

	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

func (p *ScriptedProvider) record(req *domainllm.SendRequest) (Step, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := Recorded{Model: req.Model, Options: req.Options}
	if req.Conversation != nil {
		rec.Turns = req.Conversation.Turns()
		rec.System = req.Conversation.System
	}
	for _, t := range req.Tools {
		rec.ToolNames = append(rec.ToolNames, t.Name)
	}
	p.calls = append(p.calls, rec)

	if p.generate != nil {
		return p.generate(len(p.calls)), nil
	}
	if len(p.steps) == 0 {
		return Step{}, fmt.Errorf("scripted provider %s has no steps", p.name)
	}
	if p.next >= len(p.steps) {
		if p.Strict {
			return Step{}, fmt.Errorf("scripted provider %s: script exhausted after %d calls", p.name, len(p.steps))
		}
		return p.steps[len(p.steps)-1], nil
	}
	step := p.steps[p.next]
	p.next++
	return step, nil
}

// Calls returns every recorded call.
func (p *ScriptedProvider) Calls() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Recorded, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Send calls.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Resolver is an in-memory ProviderResolver.
type Resolver struct {
	mu     sync.RWMutex
	models map[string]resolved
}

type resolved struct {
	provider domainllm.Provider
	caps     domainllm.ModelCapabilities
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{models: make(map[string]resolved)}
}

// Add registers a model. Missing capability ids are filled in.
func (r *Resolver) Add(modelID string, provider domainllm.Provider, caps domainllm.ModelCapabilities) *Resolver {
	caps.ModelID = modelID
	if caps.Provider == "" {
		caps.Provider = provider.Name()
	}
	r.mu.Lock()
	r.models[modelID] = resolved{provider: provider, caps: caps}
	r.mu.Unlock()
	return r
}

// Resolve implements ProviderResolver.
func (r *Resolver) Resolve(modelID string) (domainllm.Provider, *domainllm.ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelID]
	if !ok {
		return nil, nil, &domain.NotFoundError{Message: fmt.Sprintf("model not found: %s", modelID)}
	}
	caps := m.caps
	return m.provider, &caps, nil
}

// ToolCapable returns flags for a model with sequential tool calling.
func ToolCapable() domainllm.ModelCapabilities {
	return domainllm.ModelCapabilities{FunctionCalling: true}
}

// ParallelToolCapable returns flags for a model with parallel tool calling.
func ParallelToolCapable() domainllm.ModelCapabilities {
	return domainllm.ModelCapabilities{FunctionCalling: true, ParallelToolCalls: true}
}

// TextOnly returns flags for a model without function calling.
func TextOnly() domainllm.ModelCapabilities {
	return domainllm.ModelCapabilities{}
}
