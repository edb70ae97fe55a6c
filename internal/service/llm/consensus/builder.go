// Package consensus reconciles the outcomes of one fanned-out user turn.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"council/internal/domain"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
)

// Config configures synthesis.
type Config struct {
	// Synthesizer is the model that merges answers in consensus mode. When
	// empty or unresolvable, the first successful model by ID is used.
	Synthesizer string
	// CallTimeout bounds the synthesis call.
	CallTimeout time.Duration
	MaxTokens   int
}

// Builder builds ConsensusResults.
type Builder struct {
	resolver domainllm.ProviderResolver
	cfg      Config
	logger   *slog.Logger
}

// NewBuilder creates a consensus builder.
func NewBuilder(resolver domainllm.ProviderResolver, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{resolver: resolver, cfg: cfg, logger: logger}
}

// Build reconciles outcomes for question under mode.
//
// Debate returns every outcome without a synthesis call. Consensus with two or
// more successes makes exactly one synthesis call; with one success that answer
// is returned as is. With no successes either mode fails with
// *domain.TotalConsensusFailureError. A failed synthesis call is recorded in
// SynthesisError; the candidates are still returned.
func (b *Builder) Build(ctx context.Context, mode llm.Mode, question string, outcomes []llm.ModelRunOutcome) (*llm.ConsensusResult, error) {
	if mode != llm.ModeDebate && mode != llm.ModeConsensus {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown mode: %s", mode)}
	}

	candidates := sortedByModel(outcomes)
	result := &llm.ConsensusResult{
		Mode:       mode,
		Candidates: candidates,
		CreatedAt:  time.Now().UTC(),
	}

	successes := result.Successful()
	if len(successes) == 0 {
		return nil, &domain.TotalConsensusFailureError{Failures: llm.Failures(candidates)}
	}

	if mode == llm.ModeDebate {
		return result, nil
	}

	if len(successes) == 1 {
		answer := successes[0].Answer()
		result.SynthesizedAnswer = &answer
		return result, nil
	}

	modelID, provider, caps, err := b.synthesizer(successes)
	if err != nil {
		result.SynthesisError = err.Error()
		return result, nil
	}
	result.SynthesizerModel = modelID

	answer, err := b.synthesize(ctx, modelID, provider, caps, question, successes)
	if err != nil {
		b.logger.Warn("synthesis failed", "model", modelID, "error", err)
		result.SynthesisError = err.Error()
		return result, nil
	}
	result.SynthesizedAnswer = &answer
	return result, nil
}

func (b *Builder) synthesizer(successes []llm.ModelRunOutcome) (string, domainllm.Provider, *domainllm.ModelCapabilities, error) {
	if b.cfg.Synthesizer != "" {
		provider, caps, err := b.resolver.Resolve(b.cfg.Synthesizer)
		if err == nil {
			return b.cfg.Synthesizer, provider, caps, nil
		}
		b.logger.Warn("configured synthesizer unavailable, falling back", "model", b.cfg.Synthesizer, "error", err)
	}

	// successes are sorted by model ID
	fallback := successes[0].ModelID
	provider, caps, err := b.resolver.Resolve(fallback)
	if err != nil {
		return "", nil, nil, fmt.Errorf("resolve synthesizer %s: %w", fallback, err)
	}
	return fallback, provider, caps, nil
}

func (b *Builder) synthesize(ctx context.Context, modelID string, provider domainllm.Provider, caps *domainllm.ModelCapabilities, question string, successes []llm.ModelRunOutcome) (string, error) {
	conv := llm.NewConversation(synthesisSystemPrompt, nil)
	conv.AppendUser(SynthesisPrompt(question, successes))

	maxTokens := b.cfg.MaxTokens
	if caps != nil && caps.MaxOutput > 0 && (maxTokens == 0 || caps.MaxOutput < maxTokens) {
		maxTokens = caps.MaxOutput
	}

	start := time.Now()
	resp, err := provider.Send(ctx, &domainllm.SendRequest{
		Model:        modelID,
		Conversation: conv,
		Options: domainllm.SendOptions{
			ToolChoice: domainllm.ToolChoiceNone,
			Timeout:    b.cfg.CallTimeout,
			MaxTokens:  maxTokens,
			Idempotent: true,
		},
	})
	if err != nil {
		return "", err
	}
	if !resp.IsFinal() || strings.TrimSpace(resp.Text) == "" {
		return "", &domain.ProviderError{
			Provider: provider.Name(),
			Model:    modelID,
			Kind:     domain.ProviderErrorMalformed,
			Err:      fmt.Errorf("synthesis returned no text"),
		}
	}

	b.logger.Info("synthesis completed",
		"model", modelID,
		"answers", len(successes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.Text, nil
}

func sortedByModel(outcomes []llm.ModelRunOutcome) []llm.ModelRunOutcome {
	out := make([]llm.ModelRunOutcome, len(outcomes))
	copy(out, outcomes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}
