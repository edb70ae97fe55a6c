// Package fanout runs one user turn against several models concurrently.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"council/internal/domain"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/agentloop"
)

// Runner drives one model to an outcome. *agentloop.Engine implements it.
type Runner interface {
	Run(ctx context.Context, in agentloop.Input) llm.ModelRunOutcome
}

// Config holds the fan-out deadlines.
type Config struct {
	// ModelDeadline bounds each model's whole loop. Zero means no per-model deadline.
	ModelDeadline time.Duration
	// TurnDeadline bounds the whole fan-out. Zero means no turn deadline.
	TurnDeadline time.Duration
}

// Request is one fan-out.
type Request struct {
	ModelIDs []string
	// Snapshot is cloned once per model; it is never mutated.
	Snapshot  *llm.Conversation
	SessionID string
	UserID    string
	// Deadline, when set and earlier than the configured turn deadline, wins.
	Deadline time.Time

	// Progress hooks. They are called from model goroutines and must be safe for concurrent use.
	OnModelStart    func(modelID string)
	OnIteration     func(it agentloop.Iteration)
	OnModelComplete func(out llm.ModelRunOutcome)
}

// Coordinator fans a turn out to every selected model.
type Coordinator struct {
	resolver domainllm.ProviderResolver
	runner   Runner
	cfg      Config
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(resolver domainllm.ProviderResolver, runner Runner, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{resolver: resolver, runner: runner, cfg: cfg, logger: logger}
}

// Run returns one outcome per selected model, in selection order. It returns
// once every model has answered or hit its deadline; it never waits on a
// straggler past that point. Failures are recorded in the outcomes.
func (c *Coordinator) Run(ctx context.Context, req Request) []llm.ModelRunOutcome {
	turnCtx, cancel := c.turnContext(ctx, req.Deadline)
	defer cancel()

	start := time.Now()
	outcomes := make([]llm.ModelRunOutcome, len(req.ModelIDs))

	var g errgroup.Group
	for i, modelID := range req.ModelIDs {
		i, modelID := i, modelID
		g.Go(func() error {
			out := c.runModel(ctx, turnCtx, modelID, req)
			outcomes[i] = out
			if req.OnModelComplete != nil {
				req.OnModelComplete(out)
			}
			return nil
		})
	}
	_ = g.Wait() // per-model failures are outcomes, never group errors

	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	c.logger.Info("fan-out completed",
		"session_id", req.SessionID,
		"models", len(outcomes),
		"succeeded", succeeded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes
}

func (c *Coordinator) turnContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if c.cfg.TurnDeadline > 0 {
		configured := time.Now().Add(c.cfg.TurnDeadline)
		if deadline.IsZero() || configured.Before(deadline) {
			deadline = configured
		}
	}
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}

// runModel runs one model under its own deadline. parent is the caller's
// context; turnCtx adds the turn deadline on top of it.
func (c *Coordinator) runModel(parent, turnCtx context.Context, modelID string, req Request) llm.ModelRunOutcome {
	start := time.Now()

	provider, caps, err := c.resolver.Resolve(modelID)
	if err != nil {
		return llm.ModelRunOutcome{ModelID: modelID, Err: err}
	}

	modelCtx, cancel := turnCtx, context.CancelFunc(func() {})
	if c.cfg.ModelDeadline > 0 {
		modelCtx, cancel = context.WithTimeout(turnCtx, c.cfg.ModelDeadline)
	}
	defer cancel()

	if req.OnModelStart != nil {
		req.OnModelStart(modelID)
	}

	// Progress is mirrored here so an abandoned run still reports how far it got
	var iterations, toolCalls atomic.Int64
	in := agentloop.Input{
		ModelID:      modelID,
		Provider:     provider,
		Capabilities: caps,
		Conversation: req.Snapshot.Clone(),
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		OnIteration: func(it agentloop.Iteration) {
			iterations.Store(int64(it.Number))
			toolCalls.Add(int64(len(it.ToolCalls)))
			if req.OnIteration != nil {
				req.OnIteration(it)
			}
		},
	}

	done := make(chan llm.ModelRunOutcome, 1)
	go func() {
		done <- c.runner.Run(modelCtx, in)
	}()

	select {
	case out := <-done:
		if out.Err != nil && modelCtx.Err() != nil {
			out.Err = c.deadlineError(parent, turnCtx, modelID)
		}
		return out
	case <-modelCtx.Done():
		c.logger.Warn("model abandoned at deadline", "model", modelID, "session_id", req.SessionID)
		return llm.ModelRunOutcome{
			ModelID:        modelID,
			Err:            c.deadlineError(parent, turnCtx, modelID),
			IterationsUsed: int(iterations.Load()),
			ToolCallsMade:  int(toolCalls.Load()),
			Duration:       time.Since(start),
		}
	}
}

// deadlineError names which deadline ended a run. A canceled caller context
// is reported as cancellation, not a timeout.
func (c *Coordinator) deadlineError(parent, turnCtx context.Context, modelID string) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(turnCtx.Err(), context.DeadlineExceeded):
		return &domain.TimeoutError{Model: modelID, Scope: domain.TimeoutScopeTurn, Timeout: c.cfg.TurnDeadline}
	default:
		return &domain.TimeoutError{Model: modelID, Scope: domain.TimeoutScopeModel, Timeout: c.cfg.ModelDeadline}
	}
}
