package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/domain"
	models "council/internal/domain/models/approval"
	"council/internal/repository/memory"
	"council/internal/service/llm/tools/external"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type copyCall struct {
	userID, fileID, folderID, name string
}

type fakeDrive struct {
	mu     sync.Mutex
	copies []copyCall
	err    error
}

func (f *fakeDrive) Search(ctx context.Context, userID string, q external.DriveQuery) ([]external.DriveFile, error) {
	return nil, nil
}

func (f *fakeDrive) GetFile(ctx context.Context, userID, fileID string) (*external.DriveFile, error) {
	return &external.DriveFile{ID: fileID}, nil
}

func (f *fakeDrive) CopyFile(ctx context.Context, userID, fileID, folderID, name string) (*external.DriveFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.copies = append(f.copies, copyCall{userID, fileID, folderID, name})
	return &external.DriveFile{ID: "copy-of-" + fileID}, nil
}

type fixture struct {
	gate    *Gate
	clock   *clock
	content *memory.ContentStore
	drive   *fakeDrive
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		clock:   &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		content: memory.NewContentStore(map[string]string{"doc-1": "Q4 plan: TBD"}),
		drive:   &fakeDrive{},
	}
	f.gate = NewGate(memory.NewApprovalRepository(), memory.NewTransactionManager(), cfg, nil).WithClock(f.clock.Now)
	RegisterDefaultAppliers(f.gate, f.content, f.drive)
	return f
}

func editProposal() *models.Proposal {
	return &models.Proposal{
		FileID:          "doc-1",
		Title:           "Fill in Q4 plan",
		ChangeType:      models.ChangeTypeEdit,
		OriginalContent: "Q4 plan: TBD",
		ProposedContent: "Q4 plan: launch",
		Reasoning:       "user asked",
		SessionID:       "s1",
		UserID:          "u1",
		ModelID:         "claude",
		ToolCallID:      "toolu_1",
	}
}

func (f *fixture) text(t *testing.T, fileID string) string {
	t.Helper()
	text, err := f.content.ReadFileContent(context.Background(), fileID)
	require.NoError(t, err)
	return text
}

func requireConflict(t *testing.T, err error, current models.Status) {
	t.Helper()
	var conflict *domain.ApprovalStateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, string(current), conflict.Current)
	assert.ErrorIs(t, err, domain.ErrApprovalStateConflict)
}

func TestGate_Propose_Defaults(t *testing.T) {
	f := newFixture(t, Config{})
	record, err := f.gate.Propose(context.Background(), editProposal())
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), record.ExpiresAt)
	assert.Equal(t, 50, record.ConfidenceScore)
	assert.Equal(t, "user asked", record.AIReasoning)
	assert.Equal(t, "toolu_1", record.ToolCallID)
	assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"), "proposing never applies")
}

func TestGate_Propose_ConfidenceAndTTL(t *testing.T) {
	score := func(n int) *int { return &n }

	tests := []struct {
		name       string
		confidence *int
		ttl        time.Duration
		wantScore  int
		wantTTL    time.Duration
	}{
		{"model score", score(85), 0, 85, 24 * time.Hour},
		{"clamped high", score(150), 0, 100, 24 * time.Hour},
		{"clamped low", score(-5), 0, 0, 24 * time.Hour},
		{"caller ttl", nil, 2 * time.Hour, 50, 2 * time.Hour},
		{"ttl capped", nil, 30 * 24 * time.Hour, 50, 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{MaxTTL: 7 * 24 * time.Hour})
			p := editProposal()
			p.Confidence = tt.confidence
			p.TTL = tt.ttl

			record, err := f.gate.Propose(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, record.ConfidenceScore)
			assert.Equal(t, tt.wantTTL, record.ExpiresAt.Sub(record.CreatedAt))
		})
	}
}

func TestGate_Propose_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	noCopy := NewGate(memory.NewApprovalRepository(), memory.NewTransactionManager(), Config{}, nil)
	RegisterDefaultAppliers(noCopy, f.content, nil)

	tests := []struct {
		name   string
		gate   *Gate
		mutate func(p *models.Proposal)
	}{
		{"missing file", f.gate, func(p *models.Proposal) { p.FileID = "" }},
		{"missing change type", f.gate, func(p *models.Proposal) { p.ChangeType = "" }},
		{"unknown change type", f.gate, func(p *models.Proposal) { p.ChangeType = "delete" }},
		{"no applier", noCopy, func(p *models.Proposal) { p.ChangeType = models.ChangeTypeCopy }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := editProposal()
			tt.mutate(p)
			_, err := tt.gate.Propose(context.Background(), p)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestGate_Approve_AppliesContent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)

	approved, err := f.gate.Approve(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, "Q4 plan: launch", f.text(t, "doc-1"))

	_, err = f.gate.Approve(ctx, record.ID)
	requireConflict(t, err, models.StatusApproved)

	_, err = f.gate.Reject(ctx, record.ID)
	requireConflict(t, err, models.StatusApproved)
}

func TestGate_Approve_CreateAndCopy(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	create, err := f.gate.Propose(ctx, &models.Proposal{FileID: "new-doc", ChangeType: models.ChangeTypeCreate, ProposedContent: "hello"})
	require.NoError(t, err)
	_, err = f.gate.Approve(ctx, create.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", f.text(t, "new-doc"))

	cp, err := f.gate.Propose(ctx, &models.Proposal{
		FileID:     "doc-q4",
		ChangeType: models.ChangeTypeCopy,
		UserID:     "u1",
		Payload:    map[string]interface{}{"folder_id": "folder-mkt", "name": "Q4 report"},
	})
	require.NoError(t, err)
	assert.Empty(t, f.drive.copies)

	_, err = f.gate.Approve(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, []copyCall{{"u1", "doc-q4", "folder-mkt", "Q4 report"}}, f.drive.copies)
}

func TestGate_Reject_NeverTouchesContent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)

	rejected, err := f.gate.Reject(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))

	_, err = f.gate.Approve(ctx, record.ID)
	requireConflict(t, err, models.StatusRejected)
	assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))
}

func TestGate_ConcurrentDecisions_ExactlyOneWins(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)

	const racers = 10
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.gate.Approve(ctx, record.ID)
			} else {
				_, errs[i] = f.gate.Reject(ctx, record.ID)
			}
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrApprovalStateConflict)
	}
	assert.Equal(t, 1, wins)

	final, err := f.gate.Get(ctx, record.ID)
	require.NoError(t, err)
	if final.Status == models.StatusApproved {
		assert.Equal(t, "Q4 plan: launch", f.text(t, "doc-1"))
	} else {
		assert.Equal(t, models.StatusRejected, final.Status)
		assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))
	}
}

func TestGate_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour - time.Second)
	got, err := f.gate.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	f.clock.Advance(time.Second)
	_, err = f.gate.Approve(ctx, record.ID)
	requireConflict(t, err, models.StatusExpired)
	assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))

	got, err = f.gate.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	_, err = f.gate.Reject(ctx, record.ID)
	requireConflict(t, err, models.StatusExpired)
}

func TestGate_ExpiryBetweenReadAndSwap(t *testing.T) {
	tests := []struct {
		name   string
		decide func(g *Gate, ctx context.Context, id string) (*models.DocumentApproval, error)
	}{
		{"approve", (*Gate).Approve},
		{"reject", (*Gate).Reject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()
			record, err := f.gate.Propose(ctx, editProposal())
			require.NoError(t, err)

			// The record is still live when first read and past due on every later check
			var calls int
			f.gate.WithClock(func() time.Time {
				calls++
				if calls == 1 {
					return record.ExpiresAt.Add(-time.Second)
				}
				return record.ExpiresAt
			})

			_, err = tt.decide(f.gate, ctx, record.ID)
			requireConflict(t, err, models.StatusExpired)
			assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))

			got, err := f.gate.repo.Get(ctx, record.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusExpired, got.Status)
		})
	}
}

func TestGate_ApplyFailureLeavesRecordPending(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	boom := errors.New("storage offline")
	f.gate.RegisterApplier(models.ChangeTypeEdit, ApplierFunc(func(ctx context.Context, r *models.DocumentApproval) error {
		// a partial write that must be undone
		require.NoError(t, f.content.WriteFileContent(ctx, r.FileID, "half-written"))
		return boom
	}))

	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)

	_, err = f.gate.Approve(ctx, record.ID)
	assert.ErrorIs(t, err, boom)

	got, err := f.gate.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.DecidedAt)
	assert.Equal(t, "Q4 plan: TBD", f.text(t, "doc-1"))

	// Retry once the store is back
	RegisterDefaultAppliers(f.gate, f.content, nil)
	_, err = f.gate.Approve(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q4 plan: launch", f.text(t, "doc-1"))
}

func TestGate_CopyFailureLeavesRecordPending(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.drive.err = errors.New("drive quota exceeded")

	record, err := f.gate.Propose(ctx, &models.Proposal{
		FileID:     "doc-q4",
		ChangeType: models.ChangeTypeCopy,
		Payload:    map[string]interface{}{"folder_id": "folder-mkt"},
	})
	require.NoError(t, err)

	_, err = f.gate.Approve(ctx, record.ID)
	require.Error(t, err)

	got, _ := f.gate.Get(ctx, record.ID)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestGate_ListPending_ExpiresLazily(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	short := editProposal()
	short.TTL = time.Hour
	expiring, err := f.gate.Propose(ctx, short)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	other := editProposal()
	other.FileID = "doc-2"
	kept, err := f.gate.Propose(ctx, other)
	require.NoError(t, err)

	all, err := f.gate.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	doc1 := "doc-1"
	byFile, err := f.gate.ListPending(ctx, &doc1)
	require.NoError(t, err)
	require.Len(t, byFile, 1)
	assert.Equal(t, expiring.ID, byFile[0].ID)

	f.clock.Advance(time.Hour)
	all, err = f.gate.ListPending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.ID, all[0].ID)
}

func TestGate_StartSweeper(t *testing.T) {
	f := newFixture(t, Config{SweepInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	record, err := f.gate.Propose(ctx, editProposal())
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)

	done := make(chan struct{})
	go func() {
		f.gate.StartSweeper(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pending, err := f.gate.repo.ListPending(context.Background(), models.PendingFilter{})
		return err == nil && len(pending) == 0
	}, time.Second, 5*time.Millisecond)

	got, err := f.gate.repo.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestGate_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.gate.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.gate.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
