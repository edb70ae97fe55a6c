package services

import "context"

// ResourceAuthorizer checks if a user can access resources.
// Current implementation: ownership-based (user proposed the change in their own turn).
//
// Services call the authorizer before operating on a resource, keeping
// authorization (who can access) apart from identification (which resource).
type ResourceAuthorizer interface {
	// CanAccessApproval checks if user can read or decide an approval
	CanAccessApproval(ctx context.Context, userID, approvalID string) error
}
