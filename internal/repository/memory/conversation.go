package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"council/internal/domain/models/llm"
	llmRepo "council/internal/domain/repositories/llm"
)

// ConversationStore keeps session history in memory.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]llm.Turn
}

// NewConversationStore creates an empty store.
func NewConversationStore() llmRepo.ConversationStore {
	return &ConversationStore{sessions: make(map[string][]llm.Turn)}
}

func (s *ConversationStore) LoadConversationHistory(ctx context.Context, sessionID string) ([]llm.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]llm.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *ConversationStore) AppendTurns(ctx context.Context, sessionID string, turns []llm.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.sessions[sessionID])
	now := time.Now().UTC()
	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.SessionID = sessionID
		s.sessions[sessionID] = append(s.sessions[sessionID], t)
	}

	onRollback(ctx, func() {
		s.mu.Lock()
		s.sessions[sessionID] = s.sessions[sessionID][:before]
		s.mu.Unlock()
	})
	return nil
}
