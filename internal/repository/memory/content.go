package memory

import (
	"context"
	"fmt"
	"sync"

	"council/internal/domain"
	contentRepo "council/internal/domain/repositories/content"
)

// ContentStore is an in-memory ContentStore keyed by file id.
type ContentStore struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewContentStore creates a store seeded with files (may be nil).
func NewContentStore(files map[string]string) *ContentStore {
	s := &ContentStore{files: make(map[string]string, len(files))}
	for id, text := range files {
		s.files[id] = text
	}
	return s
}

var _ contentRepo.ContentStore = (*ContentStore)(nil)

func (s *ContentStore) ReadFileContent(ctx context.Context, fileID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.files[fileID]
	if !ok {
		return "", &domain.NotFoundError{Message: fmt.Sprintf("file not found: %s", fileID)}
	}
	return text, nil
}

func (s *ContentStore) WriteFileContent(ctx context.Context, fileID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.files[fileID]
	s.files[fileID] = text

	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.files[fileID] = prev
		} else {
			delete(s.files, fileID)
		}
	})
	return nil
}
