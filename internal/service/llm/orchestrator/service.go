// Package orchestrator runs one user turn end to end: history, fan-out,
// consensus, persistence, and progress events.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"council/internal/config"
	"council/internal/domain"
	"council/internal/domain/models/llm"
	llmRepo "council/internal/domain/repositories/llm"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/agentloop"
	"council/internal/service/llm/fanout"
	"council/internal/service/llm/streaming"
)

// FanOut runs a turn against every selected model. *fanout.Coordinator implements it.
type FanOut interface {
	Run(ctx context.Context, req fanout.Request) []llm.ModelRunOutcome
}

// Consensus turns the outcome set into a result. *consensus.Builder implements it.
type Consensus interface {
	Build(ctx context.Context, mode llm.Mode, question string, outcomes []llm.ModelRunOutcome) (*llm.ConsensusResult, error)
}

// Streams makes turns observable and interruptible. *streaming.TurnStreams implements it.
type Streams interface {
	Run(ctx context.Context, turnID string, work func(ctx context.Context, emit streaming.Emitter) error) error
	Interrupt(turnID string) error
}

// Config holds per-turn defaults.
type Config struct {
	DefaultModels []string
	DefaultMode   llm.Mode
	SystemPrompt  string
	// HistoryLimit is how many stored turns seed the conversation. Zero loads all.
	HistoryLimit int
}

// Service implements domainllm.TurnService.
type Service struct {
	store     llmRepo.ConversationStore
	fanOut    FanOut
	consensus Consensus
	streams   Streams
	cfg       Config
	logger    *slog.Logger
}

var _ domainllm.TurnService = (*Service)(nil)

// NewService creates the turn service.
func NewService(
	store llmRepo.ConversationStore,
	fanOut FanOut,
	consensus Consensus,
	streams Streams,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = llm.ModeConsensus
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		fanOut:    fanOut,
		consensus: consensus,
		streams:   streams,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunTurn implements domainllm.TurnService.
func (s *Service) RunTurn(ctx context.Context, req *domainllm.RunTurnRequest) (*llm.ConsensusResult, error) {
	if err := s.normalize(req); err != nil {
		return nil, err
	}

	history, err := s.store.LoadConversationHistory(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if s.cfg.HistoryLimit > 0 && len(history) > s.cfg.HistoryLimit {
		history = history[len(history)-s.cfg.HistoryLimit:]
	}

	snapshot := llm.NewConversation(s.cfg.SystemPrompt, history)
	snapshot.AppendUser(req.Message)

	log := s.logger.With("turn_id", req.TurnID, "session_id", req.SessionID)
	log.Info("turn started", "models", req.ModelIDs, "mode", req.Mode, "history_turns", len(history))

	var result *llm.ConsensusResult
	err = s.streams.Run(ctx, req.TurnID, func(ctx context.Context, emit streaming.Emitter) error {
		emit.Emit(streaming.EventTurnStart, streaming.TurnStartEvent{
			TurnID:    req.TurnID,
			SessionID: req.SessionID,
			Mode:      req.Mode,
			ModelIDs:  req.ModelIDs,
		})

		outcomes := s.fanOut.Run(ctx, fanout.Request{
			ModelIDs:  req.ModelIDs,
			Snapshot:  snapshot,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Deadline:  req.Deadline,
			OnModelStart: func(modelID string) {
				emit.Emit(streaming.EventModelStart, streaming.ModelStartEvent{ModelID: modelID})
			},
			OnIteration: func(it agentloop.Iteration) {
				emit.Emit(streaming.EventModelIteration, iterationEvent(it))
			},
			OnModelComplete: func(out llm.ModelRunOutcome) {
				emit.Emit(streaming.EventModelComplete, streaming.ModelCompleteEvent{Outcome: out})
			},
		})

		built, err := s.consensus.Build(ctx, req.Mode, req.Message, outcomes)
		if err != nil {
			emit.Emit(streaming.EventTurnError, streaming.TurnErrorEvent{Kind: domain.ErrorKind(err), Message: err.Error()})
			return err
		}
		built.TurnID = req.TurnID
		built.SessionID = req.SessionID
		result = built

		emit.Emit(streaming.EventConsensusComplete, streaming.ConsensusCompleteEvent{Result: built})
		return nil
	})

	// Persist even when the caller went away mid-turn.
	s.persist(context.WithoutCancel(ctx), req, result, log)

	if err != nil {
		log.Warn("turn failed", "error", err, "kind", domain.ErrorKind(err))
		return nil, err
	}

	log.Info("turn completed",
		"successful", len(result.Successful()),
		"candidates", len(result.Candidates),
		"synthesizer", result.SynthesizerModel,
	)
	return result, nil
}

// Interrupt implements domainllm.TurnService.
func (s *Service) Interrupt(turnID string) error {
	return s.streams.Interrupt(turnID)
}

// normalize applies defaults and validates the request in place.
func (s *Service) normalize(req *domainllm.RunTurnRequest) error {
	if req == nil {
		return &domain.ValidationError{Message: "request is required"}
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	if len(req.ModelIDs) == 0 {
		req.ModelIDs = append([]string(nil), s.cfg.DefaultModels...)
	}
	req.ModelIDs = dedupe(req.ModelIDs)
	if req.Mode == "" {
		req.Mode = s.cfg.DefaultMode
	}

	err := validation.ValidateStruct(req,
		validation.Field(&req.SessionID, validation.Required),
		validation.Field(&req.Message, validation.Required, validation.Length(1, config.MaxUserMessageLength)),
		validation.Field(&req.ModelIDs,
			validation.Required.Error("at least one model is required"),
			validation.Length(1, config.MaxModelsPerTurn),
			validation.Each(validation.Required),
		),
		validation.Field(&req.Mode, validation.In(llm.ModeDebate, llm.ModeConsensus)),
	)
	if err != nil {
		return domain.NewValidationError(err)
	}
	return nil
}

// persist stores the user message and the answers shown to the user.
// Storage failures are logged; the turn result stands.
func (s *Service) persist(ctx context.Context, req *domainllm.RunTurnRequest, result *llm.ConsensusResult, log *slog.Logger) {
	now := time.Now().UTC()
	turns := []llm.Turn{{
		SessionID: req.SessionID,
		Role:      llm.RoleUser,
		Content:   req.Message,
		CreatedAt: now,
	}}
	if result != nil {
		turns = append(turns, answerTurns(req.SessionID, result, now)...)
	}

	if err := s.store.AppendTurns(ctx, req.SessionID, turns); err != nil {
		log.Error("failed to persist turn", "error", err, "turns", len(turns))
	}
}

// answerTurns is the synthesized answer when there is one, otherwise each
// successful candidate's answer in candidate order.
func answerTurns(sessionID string, result *llm.ConsensusResult, at time.Time) []llm.Turn {
	if result.Mode == llm.ModeConsensus && result.SynthesizedAnswer != nil {
		modelID := result.SynthesizerModel
		if modelID == "" {
			if ok := result.Successful(); len(ok) == 1 {
				modelID = ok[0].ModelID
			}
		}
		return []llm.Turn{{
			SessionID: sessionID,
			Role:      llm.RoleAssistant,
			Content:   *result.SynthesizedAnswer,
			ModelID:   modelID,
			CreatedAt: at,
		}}
	}

	var turns []llm.Turn
	for _, c := range result.Successful() {
		turns = append(turns, llm.Turn{
			SessionID: sessionID,
			Role:      llm.RoleAssistant,
			Content:   c.Answer(),
			ModelID:   c.ModelID,
			CreatedAt: at,
		})
	}
	return turns
}

func iterationEvent(it agentloop.Iteration) streaming.ModelIterationEvent {
	ev := streaming.ModelIterationEvent{ModelID: it.ModelID, Iteration: it.Number}
	for _, call := range it.ToolCalls {
		ev.ToolNames = append(ev.ToolNames, call.Name)
	}
	for _, r := range it.Results {
		if r.IsError {
			ev.Failed++
		}
	}
	return ev
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
