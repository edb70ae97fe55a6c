package approval

import (
	"context"

	"council/internal/domain"
	models "council/internal/domain/models/approval"
	"council/internal/domain/services"
)

// Service scopes the gate to one user per call. It implements services.ApprovalService.
type Service struct {
	gate       *Gate
	authorizer services.ResourceAuthorizer
}

// NewService creates a user-scoped approval service over gate.
func NewService(gate *Gate, authorizer services.ResourceAuthorizer) *Service {
	return &Service{gate: gate, authorizer: authorizer}
}

var _ services.ApprovalService = (*Service)(nil)

// Approve applies the change if userID owns the approval.
func (s *Service) Approve(ctx context.Context, userID, id string) (*models.DocumentApproval, error) {
	if err := s.authorizer.CanAccessApproval(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.gate.Approve(ctx, id)
}

// Reject discards the change if userID owns the approval.
func (s *Service) Reject(ctx context.Context, userID, id string) (*models.DocumentApproval, error) {
	if err := s.authorizer.CanAccessApproval(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.gate.Reject(ctx, id)
}

// Get returns the approval if userID owns it.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.DocumentApproval, error) {
	if err := s.authorizer.CanAccessApproval(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.gate.Get(ctx, id)
}

// ListPending lists userID's pending approvals.
func (s *Service) ListPending(ctx context.Context, userID string, fileID *string) ([]models.DocumentApproval, error) {
	if userID == "" {
		return nil, &domain.UnauthorizedError{Message: "user id is required"}
	}
	return s.gate.list(ctx, models.PendingFilter{FileID: fileID, UserID: &userID})
}
