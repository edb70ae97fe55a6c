package tools

import (
	"context"

	"council/internal/domain/models/approval"
)

// ToolExecutor defines the interface for executing a tool.
// Implementations must be thread-safe and respect context cancellation.
type ToolExecutor interface {
	// Execute runs the tool for one invocation. Input has already been
	// validated against the tool's schema.
	// Content-mutating tools must not perform the mutation; they return the
	// intended effect in Result.Effect instead.
	Execute(ctx context.Context, inv Invocation) (*Result, error)
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, inv Invocation) (*Result, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	return f(ctx, inv)
}

// Invocation is one tool call plus the identity it runs under.
type Invocation struct {
	CallID    string
	Name      string
	Input     map[string]interface{}
	SessionID string
	UserID    string
	ModelID   string
}

// Result is either a JSON-serializable output or an intended effect.
type Result struct {
	Output interface{}
	Effect *approval.Proposal
}

// Output wraps a plain tool output.
func Output(v interface{}) *Result {
	return &Result{Output: v}
}

// Propose wraps an intended effect for the approval gate.
func Propose(p *approval.Proposal) *Result {
	return &Result{Effect: p}
}

// EffectSink turns intended effects into pending approvals.
type EffectSink interface {
	Propose(ctx context.Context, p *approval.Proposal) (*approval.DocumentApproval, error)
}
