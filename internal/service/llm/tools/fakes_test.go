package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"council/internal/domain"
	"council/internal/domain/models/approval"
	"council/internal/service/llm/tools/external"
)

type memoryContent struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemoryContent(files map[string]string) *memoryContent {
	if files == nil {
		files = map[string]string{}
	}
	return &memoryContent{files: files}
}

func (m *memoryContent) ReadFileContent(ctx context.Context, fileID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[fileID]
	if !ok {
		return "", &domain.NotFoundError{Message: "file not found: " + fileID}
	}
	return text, nil
}

func (m *memoryContent) WriteFileContent(ctx context.Context, fileID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileID] = text
	return nil
}

// recordingSink captures proposals instead of persisting them.
type recordingSink struct {
	mu        sync.Mutex
	proposals []approval.Proposal
	fail      error
}

func (s *recordingSink) Propose(ctx context.Context, p *approval.Proposal) (*approval.DocumentApproval, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = append(s.proposals, *p)
	return &approval.DocumentApproval{
		ID:         fmt.Sprintf("appr-%d", len(s.proposals)),
		FileID:     p.FileID,
		ChangeType: p.ChangeType,
		Status:     approval.StatusPending,
		ExpiresAt:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *recordingSink) all() []approval.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]approval.Proposal, len(s.proposals))
	copy(out, s.proposals)
	return out
}

type fakeDrive struct {
	files  map[string]external.DriveFile
	copies []string
	lastQ  external.DriveQuery
}

func (f *fakeDrive) Search(ctx context.Context, userID string, q external.DriveQuery) ([]external.DriveFile, error) {
	f.lastQ = q
	var out []external.DriveFile
	for _, file := range f.files {
		if q.MimeType != "" && file.MimeType != q.MimeType {
			continue
		}
		out = append(out, file)
	}
	return out, nil
}

func (f *fakeDrive) GetFile(ctx context.Context, userID, fileID string) (*external.DriveFile, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &file, nil
}

func (f *fakeDrive) CopyFile(ctx context.Context, userID, fileID, folderID, name string) (*external.DriveFile, error) {
	f.copies = append(f.copies, fileID+"->"+folderID)
	return &external.DriveFile{ID: "copy-" + fileID, Name: name, Parents: []string{folderID}}, nil
}

type fakeCalendar struct {
	lastQ  external.EventQuery
	events []external.CalendarEvent
}

func (f *fakeCalendar) ListEvents(ctx context.Context, userID string, q external.EventQuery) ([]external.CalendarEvent, error) {
	f.lastQ = q
	return f.events, nil
}
