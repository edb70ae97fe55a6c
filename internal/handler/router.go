package handler

import "net/http"

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Health    *HealthHandler
	Turns     *TurnHandler
	Approvals *ApprovalHandler
	Models    *ModelsHandler
}

// NewRouter registers all routes (Go 1.22+ method and wildcard patterns).
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.HealthCheck)

	// Turns
	mux.HandleFunc("POST /api/sessions/{id}/turns", h.Turns.CreateTurn)
	mux.HandleFunc("POST /api/turns/{id}/interrupt", h.Turns.InterruptTurn)
	mux.HandleFunc("GET /api/turns/{id}/events", h.Turns.GetTurnEvents)
	mux.HandleFunc("GET /api/turns/{id}/stream", h.Turns.StreamTurn) // SSE

	// Approvals
	mux.HandleFunc("GET /api/approvals", h.Approvals.ListPending)
	mux.HandleFunc("GET /api/approvals/{id}", h.Approvals.GetApproval)
	mux.HandleFunc("POST /api/approvals/{id}/approve", h.Approvals.Approve)
	mux.HandleFunc("POST /api/approvals/{id}/reject", h.Approvals.Reject)

	mux.HandleFunc("GET /api/models", h.Models.ListModels)

	return mux
}
