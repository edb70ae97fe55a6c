package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"council/internal/domain"
	"council/internal/httputil"
)

// handleError converts domain errors to RFC 7807 responses
func handleError(w http.ResponseWriter, err error) {
	var (
		totalErr    *domain.TotalConsensusFailureError
		approvalErr *domain.ApprovalStateConflictError
		conflictErr *domain.ConflictError
		httpErr     domain.HTTPError
	)

	switch {
	case errors.As(err, &totalErr):
		httputil.RespondErrorWithExtras(w, http.StatusBadGateway, totalErr.Error(), map[string]interface{}{
			"kind":     domain.ErrorKind(err),
			"failures": totalErr.Failures,
		})
	case errors.As(err, &approvalErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, approvalErr.Error(), map[string]interface{}{
			"kind":           domain.ErrorKind(err),
			"approval_id":    approvalErr.ApprovalID,
			"current_status": approvalErr.Current,
		})
	case errors.As(err, &conflictErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), map[string]interface{}{
			"resource_type": conflictErr.ResourceType,
			"resource_id":   conflictErr.ResourceID,
		})
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	default:
		slog.Error("unhandled error", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// PathParam reads a required path value, writing a 400 when it is missing.
func PathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	return value, true
}
