package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"council/internal/domain"
	"council/internal/domain/models/approval"
	approvalRepo "council/internal/domain/repositories/approval"
)

// ApprovalRepository is an in-memory ApprovalRepository.
type ApprovalRepository struct {
	mu      sync.Mutex
	cond    *sync.Cond
	records map[string]*approval.DocumentApproval
	// locks holds records written by a transaction that has not ended yet
	locks map[string]*undoLog
}

// NewApprovalRepository creates an empty repository.
func NewApprovalRepository() approvalRepo.ApprovalRepository {
	r := &ApprovalRepository{
		records: make(map[string]*approval.DocumentApproval),
		locks:   make(map[string]*undoLog),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// waitRecord blocks until no other transaction holds id. Caller holds r.mu.
func (r *ApprovalRepository) waitRecord(ctx context.Context, id string) {
	own := txLog(ctx)
	for {
		holder, locked := r.locks[id]
		if !locked || holder == own {
			return
		}
		r.cond.Wait()
	}
}

// waitAll blocks until no other transaction holds any record. Caller holds r.mu.
func (r *ApprovalRepository) waitAll(ctx context.Context) {
	own := txLog(ctx)
	for {
		foreign := false
		for _, holder := range r.locks {
			if holder != own {
				foreign = true
				break
			}
		}
		if !foreign {
			return
		}
		r.cond.Wait()
	}
}

// lock marks id as written by the transaction in ctx. Caller holds r.mu.
func (r *ApprovalRepository) lock(ctx context.Context, id string) {
	log := txLog(ctx)
	if log == nil || r.locks[id] == log {
		return
	}
	r.locks[id] = log
	log.onDone(func() {
		r.mu.Lock()
		delete(r.locks, id)
		r.cond.Broadcast()
		r.mu.Unlock()
	})
}

func (r *ApprovalRepository) Create(ctx context.Context, record *approval.DocumentApproval) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.waitRecord(ctx, record.ID)
	if _, exists := r.records[record.ID]; exists {
		return "", &domain.ConflictError{
			Message:      fmt.Sprintf("approval already exists: %s", record.ID),
			ResourceType: "approval",
			ResourceID:   record.ID,
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	r.records[record.ID] = cloneApproval(record)
	id := record.ID
	r.lock(ctx, id)
	onRollback(ctx, func() {
		r.mu.Lock()
		delete(r.records, id)
		r.mu.Unlock()
	})
	return id, nil
}

func (r *ApprovalRepository) Get(ctx context.Context, id string) (*approval.DocumentApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waitRecord(ctx, id)
	record, ok := r.records[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("approval not found: %s", id)}
	}
	return cloneApproval(record), nil
}

// UpdateStatus swaps expected for newStatus. Approving or rejecting also
// requires the record to be unexpired at decidedAt.
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, id string, newStatus, expected approval.Status, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waitRecord(ctx, id)
	record, ok := r.records[id]
	if !ok {
		return false, &domain.NotFoundError{Message: fmt.Sprintf("approval not found: %s", id)}
	}
	if record.Status != expected {
		return false, nil
	}
	if newStatus != approval.StatusExpired && !record.ExpiresAt.IsZero() && !decidedAt.Before(record.ExpiresAt) {
		return false, nil
	}

	prevStatus, prevDecided := record.Status, record.DecidedAt
	at := decidedAt
	record.Status = newStatus
	record.DecidedAt = &at

	r.lock(ctx, id)
	onRollback(ctx, func() {
		r.mu.Lock()
		record.Status = prevStatus
		record.DecidedAt = prevDecided
		r.mu.Unlock()
	})
	return true, nil
}

func (r *ApprovalRepository) ListPending(ctx context.Context, filter approval.PendingFilter) ([]approval.DocumentApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waitAll(ctx)
	out := make([]approval.DocumentApproval, 0)
	for _, record := range r.records {
		if record.Status != approval.StatusPending || !filter.Matches(record) {
			continue
		}
		out = append(out, *cloneApproval(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ApprovalRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waitAll(ctx)
	var ids []string
	for id, record := range r.records {
		if record.IsExpiredAt(now) {
			at := now
			record.Status = approval.StatusExpired
			record.DecidedAt = &at
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneApproval(a *approval.DocumentApproval) *approval.DocumentApproval {
	out := *a
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		out.DecidedAt = &at
	}
	if a.Payload != nil {
		out.Payload = make(map[string]interface{}, len(a.Payload))
		for k, v := range a.Payload {
			out.Payload[k] = v
		}
	}
	return &out
}
