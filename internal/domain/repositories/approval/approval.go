package approval

import (
	"context"
	"time"

	"council/internal/domain/models/approval"
)

// ApprovalRepository defines data access for document approvals.
// Status changes only go through UpdateStatus, which is a compare-and-swap.
type ApprovalRepository interface {
	// Create stores a new pending record and returns its id
	Create(ctx context.Context, record *approval.DocumentApproval) (string, error)

	// Get retrieves a record by id
	// Returns domain.ErrNotFound if it does not exist
	Get(ctx context.Context, id string) (*approval.DocumentApproval, error)

	// UpdateStatus sets newStatus only if the current status equals expected.
	// A move to anything but expired also requires expires_at > decidedAt.
	// Returns false (and no error) when the swap lost.
	UpdateStatus(ctx context.Context, id string, newStatus, expected approval.Status, decidedAt time.Time) (bool, error)

	// ListPending lists pending records matching filter, newest first
	ListPending(ctx context.Context, filter approval.PendingFilter) ([]approval.DocumentApproval, error)

	// ExpireDue moves every pending record with expires_at <= now to expired.
	// Returns the ids that changed.
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}
