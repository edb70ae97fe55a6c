package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"council/internal/domain"
	"council/internal/domain/models/llm"
)

// ExecContext identifies who a batch of tool calls runs for.
type ExecContext struct {
	SessionID string
	UserID    string
	ModelID   string

	// Sequential forces one-at-a-time execution in call order, for models
	// whose tool-calling protocol cannot handle concurrent results.
	Sequential bool
}

// Executor runs tool calls against a registry and routes mutating effects
// to an EffectSink.
type Executor struct {
	registry       *ToolRegistry
	sink           EffectSink
	maxConcurrency int
	logger         *slog.Logger
}

// NewExecutor creates an executor. maxConcurrency <= 0 means unbounded.
func NewExecutor(registry *ToolRegistry, sink EffectSink, maxConcurrency int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:       registry,
		sink:           sink,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Registry returns the underlying tool registry.
func (e *Executor) Registry() *ToolRegistry { return e.registry }

// ExecuteAll executes every call and returns exactly one result per call, in call order.
//
// Calls run concurrently unless ec.Sequential is set. Calls to a non-reentrant
// tool share one lane and run in call order; lanes run concurrently with each other.
func (e *Executor) ExecuteAll(ctx context.Context, calls []llm.ToolCall, ec ExecContext) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	if ec.Sequential || len(calls) == 1 {
		for i, call := range calls {
			results[i] = e.Execute(ctx, call, ec)
		}
		return results
	}

	// Group call indexes into lanes
	var lanes [][]int
	serialLane := make(map[string]int) // tool name -> lane index
	for i, call := range calls {
		def, _, ok := e.registry.Get(call.Name)
		if ok && !def.Reentrant {
			if lane, exists := serialLane[call.Name]; exists {
				lanes[lane] = append(lanes[lane], i)
				continue
			}
			serialLane[call.Name] = len(lanes)
		}
		lanes = append(lanes, []int{i})
	}

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for _, lane := range lanes {
		lane := lane
		g.Go(func() error {
			for _, idx := range lane {
				results[idx] = e.Execute(ctx, calls[idx], ec)
			}
			return nil
		})
	}
	_ = g.Wait() // lanes never return errors; failures are results

	return results
}

// Execute runs a single call through lookup, validation, the handler, and
// approval interception. It never returns a Go error: every failure becomes
// an error result the model can react to.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall, ec ExecContext) llm.ToolResult {
	start := time.Now()
	result := e.execute(ctx, call, ec)

	attrs := []any{
		"tool", call.Name,
		"tool_call_id", call.ID,
		"model", ec.ModelID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if result.IsError {
		e.logger.Warn("tool call failed", append(attrs, "error", result.Error)...)
	} else {
		e.logger.Debug("tool call completed", attrs...)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, call llm.ToolCall, ec ExecContext) llm.ToolResult {
	if err := ctx.Err(); err != nil {
		return failure(call, domain.ToolFailureCanceled, err)
	}

	def, executor, ok := e.registry.Get(call.Name)
	if !ok {
		return failure(call, domain.ToolFailureNotFound, fmt.Errorf("no tool named %q", call.Name))
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := ValidateArguments(def.Parameters, args); err != nil {
		return failure(call, domain.ToolFailureInvalidArguments, err)
	}

	inv := Invocation{
		CallID:    call.ID,
		Name:      call.Name,
		Input:     args,
		SessionID: ec.SessionID,
		UserID:    ec.UserID,
		ModelID:   ec.ModelID,
	}

	res, err := e.runHandler(ctx, executor, inv)
	if err != nil {
		var toolErr *domain.ToolExecutionError
		if errors.As(err, &toolErr) {
			return failure(call, toolErr.Reason, toolErr.Err)
		}
		if ctx.Err() != nil {
			return failure(call, domain.ToolFailureCanceled, err)
		}
		return failure(call, domain.ToolFailureHandler, err)
	}
	if res == nil {
		res = &Result{}
	}

	if res.Effect == nil {
		return llm.ToolResult{ToolCallID: call.ID, Name: call.Name, Output: res.Output}
	}
	if !def.Mutating {
		return failure(call, domain.ToolFailureHandler, errors.New("tool is not declared content-mutating but proposed an effect"))
	}
	return e.propose(ctx, call, ec, res)
}

// propose records the effect as a pending approval. The record is created
// outside the caller's cancellation so it is either fully written or absent.
func (e *Executor) propose(ctx context.Context, call llm.ToolCall, ec ExecContext, res *Result) llm.ToolResult {
	if e.sink == nil {
		return failure(call, domain.ToolFailureApproval, errors.New("no approval gate configured"))
	}

	p := *res.Effect
	p.SessionID = ec.SessionID
	p.UserID = ec.UserID
	p.ModelID = ec.ModelID
	p.ToolCallID = call.ID

	record, err := e.sink.Propose(context.WithoutCancel(ctx), &p)
	if err != nil {
		return failure(call, domain.ToolFailureApproval, err)
	}

	e.logger.Info("mutating tool call held for approval",
		"tool", call.Name,
		"approval_id", record.ID,
		"file_id", record.FileID,
		"change_type", record.ChangeType,
	)

	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Output: map[string]interface{}{
			"status":      "pending_approval",
			"approval_id": record.ID,
			"file_id":     record.FileID,
			"expires_at":  record.ExpiresAt.UTC().Format(time.RFC3339),
			"message":     "The change was not applied. It is waiting for the user's approval.",
		},
	}
}

func (e *Executor) runHandler(ctx context.Context, executor ToolExecutor, inv Invocation) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked", "tool", inv.Name, "panic", r, "stack", string(debug.Stack()))
			err = &domain.ToolExecutionError{
				Tool:   inv.Name,
				CallID: inv.CallID,
				Reason: domain.ToolFailurePanic,
				Err:    fmt.Errorf("%v", r),
			}
		}
	}()
	return executor.Execute(ctx, inv)
}

func failure(call llm.ToolCall, reason domain.ToolFailureReason, err error) llm.ToolResult {
	toolErr := &domain.ToolExecutionError{Tool: call.Name, CallID: call.ID, Reason: reason, Err: err}
	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Error:      toolErr.Error(),
		IsError:    true,
		Err:        toolErr,
	}
}
