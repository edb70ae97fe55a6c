// Package approval holds LLM-proposed content changes until a human decides on them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"council/internal/domain"
	models "council/internal/domain/models/approval"
	"council/internal/domain/repositories"
	approvalRepo "council/internal/domain/repositories/approval"
)

// Config configures the gate.
type Config struct {
	// DefaultTTL applies when a proposal does not carry its own. Defaults to 24h.
	DefaultTTL time.Duration
	// MaxTTL caps caller-supplied TTLs. Zero means no cap.
	MaxTTL time.Duration
	// DefaultConfidence applies when neither the model nor the tool supplied a score.
	DefaultConfidence int
	// SweepInterval is how often StartSweeper expires due records. Defaults to 1m.
	SweepInterval time.Duration
}

// Gate implements the approval state machine: pending moves to approved,
// rejected, or expired, and every move is a compare-and-swap on status.
type Gate struct {
	repo      approvalRepo.ApprovalRepository
	txManager repositories.TransactionManager
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	appliers map[models.ChangeType]Applier
}

// NewGate creates an approval gate. Register an Applier per change type before proposing.
func NewGate(repo approvalRepo.ApprovalRepository, txManager repositories.TransactionManager, cfg Config, logger *slog.Logger) *Gate {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.DefaultConfidence == 0 {
		cfg.DefaultConfidence = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		repo:      repo,
		txManager: txManager,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		appliers:  make(map[models.ChangeType]Applier),
	}
}

// WithClock replaces the gate's clock. Used by tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// RegisterApplier sets the applier for a change type.
func (g *Gate) RegisterApplier(changeType models.ChangeType, applier Applier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.appliers[changeType] = applier
}

func (g *Gate) applier(changeType models.ChangeType) (Applier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.appliers[changeType]
	return a, ok
}

// Propose records a mutating tool's intended effect as a pending approval.
func (g *Gate) Propose(ctx context.Context, p *models.Proposal) (*models.DocumentApproval, error) {
	err := validation.ValidateStruct(p,
		validation.Field(&p.FileID, validation.Required),
		validation.Field(&p.ChangeType, validation.Required,
			validation.In(models.ChangeTypeEdit, models.ChangeTypeCreate, models.ChangeTypeCopy)),
	)
	if err != nil {
		return nil, domain.NewValidationError(err)
	}
	if _, ok := g.applier(p.ChangeType); !ok {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("no applier registered for change type %s", p.ChangeType)}
	}

	now := g.now()
	ttl := g.cfg.DefaultTTL
	if p.TTL > 0 {
		ttl = p.TTL
		if g.cfg.MaxTTL > 0 && ttl > g.cfg.MaxTTL {
			ttl = g.cfg.MaxTTL
		}
	}
	confidence := g.cfg.DefaultConfidence
	if p.Confidence != nil {
		confidence = *p.Confidence
	}

	record := &models.DocumentApproval{
		ID:              uuid.NewString(),
		FileID:          p.FileID,
		Title:           p.Title,
		Description:     p.Description,
		ChangeType:      p.ChangeType,
		OriginalContent: p.OriginalContent,
		ProposedContent: p.ProposedContent,
		AIReasoning:     p.Reasoning,
		ConfidenceScore: models.ClampConfidence(confidence),
		Status:          models.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		SessionID:       p.SessionID,
		UserID:          p.UserID,
		ModelID:         p.ModelID,
		ToolCallID:      p.ToolCallID,
		Payload:         p.Payload,
	}

	id, err := g.repo.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	record.ID = id

	g.logger.Info("approval proposed",
		"approval_id", id,
		"file_id", record.FileID,
		"change_type", record.ChangeType,
		"model", record.ModelID,
		"session_id", record.SessionID,
		"expires_at", record.ExpiresAt,
	)
	return record, nil
}

// Approve applies the proposed change and marks the record approved, in one
// transaction. If applying fails, the record stays pending.
func (g *Gate) Approve(ctx context.Context, id string) (*models.DocumentApproval, error) {
	record, err := g.pendingRecord(ctx, id, models.StatusApproved)
	if err != nil {
		return nil, err
	}

	applier, ok := g.applier(record.ChangeType)
	if !ok {
		return nil, fmt.Errorf("no applier registered for change type %s", record.ChangeType)
	}

	decidedAt := g.now()
	err = g.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := g.swap(txCtx, id, models.StatusApproved); err != nil {
			return err
		}
		if err := applier.Apply(txCtx, record); err != nil {
			return fmt.Errorf("apply %s approval %s: %w", record.ChangeType, id, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrApprovalStateConflict) {
			g.logger.Error("approval apply failed", "approval_id", id, "error", err)
		}
		g.settleExpired(ctx, record, err)
		return nil, err
	}

	record.Status = models.StatusApproved
	record.DecidedAt = &decidedAt
	g.logger.Info("approval approved", "approval_id", id, "file_id", record.FileID, "change_type", record.ChangeType)
	return record, nil
}

// Reject discards the proposed change. Content is never touched.
func (g *Gate) Reject(ctx context.Context, id string) (*models.DocumentApproval, error) {
	record, err := g.pendingRecord(ctx, id, models.StatusRejected)
	if err != nil {
		return nil, err
	}

	decidedAt := g.now()
	if err := g.swap(ctx, id, models.StatusRejected); err != nil {
		g.settleExpired(ctx, record, err)
		return nil, err
	}

	record.Status = models.StatusRejected
	record.DecidedAt = &decidedAt
	g.logger.Info("approval rejected", "approval_id", id, "file_id", record.FileID)
	return record, nil
}

// Get returns a record, expiring it first if its time has passed.
func (g *Gate) Get(ctx context.Context, id string) (*models.DocumentApproval, error) {
	record, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.IsExpiredAt(g.now()) {
		return g.expire(ctx, record)
	}
	return record, nil
}

// ListPending lists records still awaiting a decision, optionally for one file.
func (g *Gate) ListPending(ctx context.Context, fileID *string) ([]models.DocumentApproval, error) {
	return g.list(ctx, models.PendingFilter{FileID: fileID})
}

func (g *Gate) list(ctx context.Context, filter models.PendingFilter) ([]models.DocumentApproval, error) {
	if _, err := g.ExpireDue(ctx); err != nil {
		return nil, err
	}
	return g.repo.ListPending(ctx, filter)
}

// ExpireDue expires every pending record whose time has passed.
func (g *Gate) ExpireDue(ctx context.Context) ([]string, error) {
	ids, err := g.repo.ExpireDue(ctx, g.now())
	if err != nil {
		return nil, fmt.Errorf("expire approvals: %w", err)
	}
	if len(ids) > 0 {
		g.logger.Info("approvals expired", "count", len(ids), "approval_ids", ids)
	}
	return ids, nil
}

// StartSweeper expires due records every SweepInterval until ctx is done.
// It blocks; run it in its own goroutine.
func (g *Gate) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.ExpireDue(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("approval sweep failed", "error", err)
			}
		}
	}
}

// pendingRecord loads a record that must still be pending for the attempted
// transition. An expired-but-pending record is expired on the way.
func (g *Gate) pendingRecord(ctx context.Context, id string, attempted models.Status) (*models.DocumentApproval, error) {
	record, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.IsExpiredAt(g.now()) {
		if record, err = g.expire(ctx, record); err != nil {
			return nil, err
		}
	}
	if record.Status != models.StatusPending {
		return nil, conflict(id, record.Status, attempted)
	}
	return record, nil
}

// swap moves id from pending to next. Losing the swap is a conflict carrying
// the status the winner left behind; a record that expired since it was read
// loses too and is reported as expired.
func (g *Gate) swap(ctx context.Context, id string, next models.Status) error {
	now := g.now()
	swapped, err := g.repo.UpdateStatus(ctx, id, next, models.StatusPending, now)
	if err != nil {
		return fmt.Errorf("update approval %s: %w", id, err)
	}
	if swapped {
		return nil
	}

	current, err := g.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("reload approval %s: %w", id, err)
	}
	status := current.Status
	if current.IsExpiredAt(now) {
		status = models.StatusExpired
	}
	return conflict(id, status, next)
}

// settleExpired records an expiry that a lost swap reported but did not write.
func (g *Gate) settleExpired(ctx context.Context, record *models.DocumentApproval, err error) {
	var conflictErr *domain.ApprovalStateConflictError
	if !errors.As(err, &conflictErr) || conflictErr.Current != string(models.StatusExpired) {
		return
	}
	if _, err := g.expire(ctx, record); err != nil {
		g.logger.Warn("failed to expire approval", "approval_id", record.ID, "error", err)
	}
}

func (g *Gate) expire(ctx context.Context, record *models.DocumentApproval) (*models.DocumentApproval, error) {
	now := g.now()
	swapped, err := g.repo.UpdateStatus(ctx, record.ID, models.StatusExpired, models.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("expire approval %s: %w", record.ID, err)
	}
	if !swapped {
		// Someone else decided first
		return g.repo.Get(ctx, record.ID)
	}
	record.Status = models.StatusExpired
	record.DecidedAt = &now
	g.logger.Info("approval expired", "approval_id", record.ID, "file_id", record.FileID)
	return record, nil
}

func conflict(id string, current, attempted models.Status) error {
	return &domain.ApprovalStateConflictError{
		ApprovalID: id,
		Current:    string(current),
		Attempted:  string(attempted),
	}
}
