package handler

import (
	"net/http"

	"council/internal/httputil"
)

// HealthHandler reports liveness and the active storage backend
type HealthHandler struct {
	storage string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(storage string) *HealthHandler {
	return &HealthHandler{storage: storage}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": h.storage,
	})
}
