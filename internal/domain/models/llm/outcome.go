package llm

import (
	"encoding/json"
	"time"

	"council/internal/domain"
)

// Mode selects how multi-model output is presented.
type Mode string

const (
	ModeDebate    Mode = "debate"
	ModeConsensus Mode = "consensus"
)

// ModelRunOutcome is the result of one model's agentic loop for one user turn.
// Exactly one of FinalAnswer and Err is set, except for degraded outcomes,
// which carry a LoopExhaustedError and may keep a best-effort answer.
type ModelRunOutcome struct {
	ModelID        string
	FinalAnswer    *string
	Err            error
	IterationsUsed int
	ToolCallsMade  int
	Degraded       bool
	Duration       time.Duration
}

// Succeeded reports whether the model produced a usable final answer.
func (o ModelRunOutcome) Succeeded() bool {
	return o.Err == nil && o.FinalAnswer != nil
}

// Answer returns the final answer or "".
func (o ModelRunOutcome) Answer() string {
	if o.FinalAnswer == nil {
		return ""
	}
	return *o.FinalAnswer
}

// OutcomeError is the serialized form of a failed outcome.
type OutcomeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type outcomeJSON struct {
	ModelID        string        `json:"model_id"`
	Status         string        `json:"status"`
	FinalAnswer    *string       `json:"final_answer,omitempty"`
	Error          *OutcomeError `json:"error,omitempty"`
	IterationsUsed int           `json:"iterations_used"`
	ToolCallsMade  int           `json:"tool_calls_made"`
	Degraded       bool          `json:"degraded,omitempty"`
	DurationMS     int64         `json:"duration_ms"`
}

// MarshalJSON renders failures as explicit markers instead of dropping them.
func (o ModelRunOutcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		ModelID:        o.ModelID,
		Status:         "succeeded",
		FinalAnswer:    o.FinalAnswer,
		IterationsUsed: o.IterationsUsed,
		ToolCallsMade:  o.ToolCallsMade,
		Degraded:       o.Degraded,
		DurationMS:     o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		out.Status = "failed"
		out.Error = &OutcomeError{Kind: domain.ErrorKind(o.Err), Message: o.Err.Error()}
	}
	return json.Marshal(out)
}

// ConsensusResult is built once per user turn from the completed outcome set.
type ConsensusResult struct {
	TurnID            string            `json:"turn_id"`
	SessionID         string            `json:"session_id"`
	Mode              Mode              `json:"mode"`
	Candidates        []ModelRunOutcome `json:"candidates"`
	SynthesizedAnswer *string           `json:"synthesized_answer,omitempty"`
	SynthesizerModel  string            `json:"synthesizer_model,omitempty"`
	SynthesisError    string            `json:"synthesis_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Successful returns the candidates that produced an answer.
func (r *ConsensusResult) Successful() []ModelRunOutcome {
	var out []ModelRunOutcome
	for _, c := range r.Candidates {
		if c.Succeeded() {
			out = append(out, c)
		}
	}
	return out
}

// Failures summarizes failed outcomes as domain.ModelFailure values.
func Failures(outcomes []ModelRunOutcome) []domain.ModelFailure {
	var out []domain.ModelFailure
	for _, o := range outcomes {
		if o.Succeeded() {
			continue
		}
		f := domain.ModelFailure{ModelID: o.ModelID, Kind: "no_answer"}
		if o.Err != nil {
			f.Kind = domain.ErrorKind(o.Err)
			f.Message = o.Err.Error()
		}
		out = append(out, f)
	}
	return out
}
