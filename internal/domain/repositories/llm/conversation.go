package llm

import (
	"context"

	"council/internal/domain/models/llm"
)

// ConversationStore persists session history between user turns.
// The orchestration core reads history once at the start of a turn and appends
// the finished turns at the end; it never rewrites stored turns.
type ConversationStore interface {
	// LoadConversationHistory returns the session's turns oldest first.
	// A session with no turns yields an empty slice, not an error.
	LoadConversationHistory(ctx context.Context, sessionID string) ([]llm.Turn, error)

	// AppendTurns stores turns in order after the existing ones.
	// IDs and timestamps are assigned when missing.
	AppendTurns(ctx context.Context, sessionID string, turns []llm.Turn) error
}
