package auth

import (
	"context"
	"fmt"

	"council/internal/domain"
	approvalRepo "council/internal/domain/repositories/approval"
)

// OwnerBasedAuthorizer implements ResourceAuthorizer using ownership checks.
// A user can access an approval if it was proposed during one of their turns.
type OwnerBasedAuthorizer struct {
	approvals approvalRepo.ApprovalRepository
}

// NewOwnerBasedAuthorizer creates a new ownership-based authorizer
func NewOwnerBasedAuthorizer(approvals approvalRepo.ApprovalRepository) *OwnerBasedAuthorizer {
	return &OwnerBasedAuthorizer{approvals: approvals}
}

// CanAccessApproval checks if user owns the approval
func (a *OwnerBasedAuthorizer) CanAccessApproval(ctx context.Context, userID, approvalID string) error {
	record, err := a.approvals.Get(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("get approval for auth: %w", err)
	}
	if userID == "" || record.UserID != userID {
		return &domain.ForbiddenError{Message: fmt.Sprintf("access denied to approval %s", approvalID)}
	}
	return nil
}
