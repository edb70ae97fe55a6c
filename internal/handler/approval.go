package handler

import (
	"log/slog"
	"net/http"

	"council/internal/domain/services"
	"council/internal/httputil"
)

// ApprovalHandler handles approval HTTP requests
type ApprovalHandler struct {
	approvals services.ApprovalService
	logger    *slog.Logger
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvals services.ApprovalService, logger *slog.Logger) *ApprovalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalHandler{approvals: approvals, logger: logger}
}

// ListPending lists the caller's pending approvals, optionally for one file
// GET /api/approvals?file_id=
func (h *ApprovalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.approvals.ListPending(r.Context(), httputil.GetUserID(r), httputil.OptionalQuery(r, "file_id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": records,
		"count":     len(records),
	})
}

// GetApproval returns one approval
// GET /api/approvals/{id}
func (h *ApprovalHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Approval ID")
	if !ok {
		return
	}

	record, err := h.approvals.Get(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, record)
}

// Approve applies a pending change
// POST /api/approvals/{id}/approve
// Returns 409 if the approval is no longer pending, 403 if it belongs to another user
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Approval ID")
	if !ok {
		return
	}

	record, err := h.approvals.Approve(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("approval decided via API", "approval_id", id, "status", record.Status, "user_id", httputil.GetUserID(r))
	httputil.RespondJSON(w, http.StatusOK, record)
}

// Reject discards a pending change
// POST /api/approvals/{id}/reject
func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Approval ID")
	if !ok {
		return
	}

	record, err := h.approvals.Reject(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("approval decided via API", "approval_id", id, "status", record.Status, "user_id", httputil.GetUserID(r))
	httputil.RespondJSON(w, http.StatusOK, record)
}
