package streaming

import (
	"time"

	"council/internal/domain/models/llm"
)

// Event types emitted while a turn runs.
const (
	EventTurnStart         = "turn_start"
	EventModelStart        = "model_start"
	EventModelIteration    = "model_iteration"
	EventModelComplete     = "model_complete"
	EventConsensusComplete = "consensus_complete"
	EventTurnError         = "turn_error"
)

// Event is one recorded progress event.
type Event struct {
	Seq       int         `json:"seq"`
	Type      string      `json:"type"`
	TurnID    string      `json:"turn_id"`
	Data      interface{} `json:"data"`
	CreatedAt time.Time   `json:"created_at"`
}

// TurnStartEvent opens every turn stream.
type TurnStartEvent struct {
	TurnID    string   `json:"turn_id"`
	SessionID string   `json:"session_id"`
	Mode      llm.Mode `json:"mode"`
	ModelIDs  []string `json:"model_ids"`
}

// ModelStartEvent is sent when a model's loop begins.
type ModelStartEvent struct {
	ModelID string `json:"model_id"`
}

// ModelIterationEvent is sent after each completed tool round.
type ModelIterationEvent struct {
	ModelID   string   `json:"model_id"`
	Iteration int      `json:"iteration"`
	ToolNames []string `json:"tool_names"`
	Failed    int      `json:"failed_calls"`
}

// ModelCompleteEvent carries the model's finished outcome.
type ModelCompleteEvent struct {
	Outcome llm.ModelRunOutcome `json:"outcome"`
}

// ConsensusCompleteEvent carries the turn result.
type ConsensusCompleteEvent struct {
	Result *llm.ConsensusResult `json:"result"`
}

// TurnErrorEvent closes a turn that failed as a whole.
type TurnErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
