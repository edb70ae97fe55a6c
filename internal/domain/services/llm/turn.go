package llm

import (
	"context"
	"time"

	"council/internal/domain/models/llm"
)

// TurnService is the single per-turn operation exposed to the chat/API layer.
type TurnService interface {
	// RunTurn fans the user message out to the selected models and returns
	// either every answer (debate) or a synthesized answer (consensus).
	// Only request validation, history loading, and TotalConsensusFailure
	// fail the call; per-model failures are returned as data.
	RunTurn(ctx context.Context, req *RunTurnRequest) (*llm.ConsensusResult, error)

	// Interrupt cancels a running turn. Returns domain.ErrNotFound if the turn is not running.
	Interrupt(turnID string) error
}

// RunTurnRequest is the input to RunTurn.
type RunTurnRequest struct {
	// TurnID is optional; generated when empty so clients can subscribe before the turn completes
	TurnID    string    `json:"turn_id,omitempty"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"-"`
	Message   string    `json:"message"`
	ModelIDs  []string  `json:"model_ids"`
	Mode      llm.Mode  `json:"mode"`
	Deadline  time.Time `json:"deadline,omitempty"` // zero uses the configured turn deadline
}
