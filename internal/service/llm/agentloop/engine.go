// Package agentloop drives one model through tool-calling rounds for one user turn.
package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"council/internal/domain"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/tools"
)

// Config bounds one loop run.
type Config struct {
	// MaxIterations is the number of tool rounds (model turn followed by tool
	// execution) allowed before the forced final call.
	MaxIterations int
	// CallTimeout bounds each provider round-trip.
	CallTimeout time.Duration
	// MaxTokens caps each response. Zero uses the adapter default.
	MaxTokens int
}

// Iteration describes one completed tool round, for progress reporting.
type Iteration struct {
	ModelID   string
	Number    int
	ToolCalls []llm.ToolCall
	Results   []llm.ToolResult
}

// Input is everything one run needs. The conversation is owned by the run.
type Input struct {
	ModelID      string
	Provider     domainllm.Provider
	Capabilities *domainllm.ModelCapabilities
	Conversation *llm.Conversation
	SessionID    string
	UserID       string

	// OnIteration, if set, is called after each tool round from the run's goroutine.
	OnIteration func(Iteration)
}

// Engine runs agentic loops. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	executor *tools.Executor
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine. A nil executor runs every model single-shot.
func NewEngine(executor *tools.Executor, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{executor: executor, cfg: cfg, logger: logger}
}

// MaxIterations returns the configured iteration cap.
func (e *Engine) MaxIterations() int { return e.cfg.MaxIterations }

// Run drives the model to a final answer, an error, or the iteration cap.
// It always returns an outcome; failures are recorded in outcome.Err.
func (e *Engine) Run(ctx context.Context, in Input) (out llm.ModelRunOutcome) {
	start := time.Now()
	out.ModelID = in.ModelID
	defer func() {
		out.Duration = time.Since(start)
		e.logOutcome(out)
	}()

	if !e.toolsEnabled(in.Capabilities) {
		e.singleShot(ctx, in, &out)
		return out
	}

	specs := e.executor.Registry().Specs()
	parallel := in.Capabilities.ParallelToolCalls
	ec := tools.ExecContext{
		SessionID:  in.SessionID,
		UserID:     in.UserID,
		ModelID:    in.ModelID,
		Sequential: !parallel,
	}

	var lastText string
	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		resp, err := e.send(ctx, in, specs, domainllm.SendOptions{
			ToolChoice:             domainllm.ToolChoiceAuto,
			AllowParallelToolCalls: parallel,
		})
		if err != nil {
			out.Err = err
			return out
		}
		if resp.Text != "" {
			lastText = resp.Text
		}
		if resp.IsFinal() {
			answer := resp.Text
			out.FinalAnswer = &answer
			return out
		}

		if err := in.Conversation.AppendAssistant(in.ModelID, resp.Text, resp.ToolCalls); err != nil {
			out.Err = &domain.ProviderError{
				Provider: in.Provider.Name(),
				Model:    in.ModelID,
				Kind:     domain.ProviderErrorMalformed,
				Err:      err,
			}
			return out
		}

		results := e.executor.ExecuteAll(ctx, resp.ToolCalls, ec)
		out.ToolCallsMade += len(resp.ToolCalls)
		if err := in.Conversation.AppendToolResults(results); err != nil {
			out.Err = fmt.Errorf("append tool results: %w", err)
			return out
		}
		out.IterationsUsed = iter

		if in.OnIteration != nil {
			in.OnIteration(Iteration{ModelID: in.ModelID, Number: iter, ToolCalls: resp.ToolCalls, Results: results})
		}
	}

	e.forcedFinal(ctx, in, specs, lastText, &out)
	return out
}

// forcedFinal issues the one post-cap call with tool choice disabled. Tools stay
// declared so the conversation's earlier tool turns remain valid for the provider.
func (e *Engine) forcedFinal(ctx context.Context, in Input, specs []llm.ToolSpec, lastText string, out *llm.ModelRunOutcome) {
	resp, err := e.send(ctx, in, specs, domainllm.SendOptions{ToolChoice: domainllm.ToolChoiceNone})
	if err == nil && resp.IsFinal() && resp.Text != "" {
		answer := resp.Text
		out.FinalAnswer = &answer
		return
	}

	exhausted := &domain.LoopExhaustedError{Model: in.ModelID, Iterations: e.cfg.MaxIterations, BestEffort: lastText, Err: err}
	if err == nil && resp.Text != "" {
		exhausted.BestEffort = resp.Text
	}
	out.Err = exhausted
	out.Degraded = true
	if exhausted.BestEffort != "" {
		bestEffort := exhausted.BestEffort
		out.FinalAnswer = &bestEffort
	}
}

// singleShot runs a model without function calling: one call, no tools.
func (e *Engine) singleShot(ctx context.Context, in Input, out *llm.ModelRunOutcome) {
	resp, err := e.send(ctx, in, nil, domainllm.SendOptions{ToolChoice: domainllm.ToolChoiceNone})
	if err != nil {
		out.Err = err
		return
	}
	if !resp.IsFinal() && resp.Text == "" {
		out.Err = &domain.ProviderError{
			Provider: in.Provider.Name(),
			Model:    in.ModelID,
			Kind:     domain.ProviderErrorMalformed,
			Err:      fmt.Errorf("tool calls returned without declared tools"),
		}
		return
	}
	answer := resp.Text
	out.FinalAnswer = &answer
}

func (e *Engine) send(ctx context.Context, in Input, specs []llm.ToolSpec, opts domainllm.SendOptions) (*domainllm.ProviderResponse, error) {
	opts.Timeout = e.cfg.CallTimeout
	opts.MaxTokens = e.maxTokens(in.Capabilities)
	// Provider calls never mutate anything; tool mutations go through the approval gate
	opts.Idempotent = true

	return in.Provider.Send(ctx, &domainllm.SendRequest{
		Model:        in.ModelID,
		Conversation: in.Conversation,
		Tools:        specs,
		Options:      opts,
	})
}

func (e *Engine) toolsEnabled(caps *domainllm.ModelCapabilities) bool {
	return caps != nil && caps.FunctionCalling && e.executor != nil && e.executor.Registry().Len() > 0
}

func (e *Engine) maxTokens(caps *domainllm.ModelCapabilities) int {
	n := e.cfg.MaxTokens
	if caps != nil && caps.MaxOutput > 0 && (n == 0 || caps.MaxOutput < n) {
		n = caps.MaxOutput
	}
	return n
}

func (e *Engine) logOutcome(out llm.ModelRunOutcome) {
	attrs := []any{
		"model", out.ModelID,
		"iterations", out.IterationsUsed,
		"tool_calls", out.ToolCallsMade,
		"duration_ms", out.Duration.Milliseconds(),
	}
	switch {
	case out.Err == nil:
		e.logger.Info("model run completed", attrs...)
	case out.Degraded:
		e.logger.Warn("model run degraded", append(attrs, "error", out.Err)...)
	default:
		e.logger.Warn("model run failed", append(attrs, "error", out.Err, "kind", domain.ErrorKind(out.Err))...)
	}
}
