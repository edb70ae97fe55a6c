package services

import (
	"context"

	"council/internal/domain/models/approval"
)

// ApprovalService exposes approval management to the API layer. Every call
// acts for userID and only reaches approvals proposed during that user's turns;
// other approvals return domain.ErrForbidden.
type ApprovalService interface {
	// Approve applies the proposed change. Requires a pending, unexpired record;
	// otherwise returns *domain.ApprovalStateConflictError.
	Approve(ctx context.Context, userID, id string) (*approval.DocumentApproval, error)

	// Reject discards the proposed change. Requires a pending record.
	Reject(ctx context.Context, userID, id string) (*approval.DocumentApproval, error)

	// Get returns a record, expiring it first if its time has passed
	Get(ctx context.Context, userID, id string) (*approval.DocumentApproval, error)

	// ListPending lists the user's pending records, optionally for a single file
	ListPending(ctx context.Context, userID string, fileID *string) ([]approval.DocumentApproval, error)
}
