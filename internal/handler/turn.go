package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"council/internal/domain/models/llm"
	llmSvc "council/internal/domain/services/llm"
	"council/internal/handler/sse"
	"council/internal/httputil"
	"council/internal/service/llm/streaming"
)

// TurnEvents exposes recorded turn progress. *streaming.TurnStreams implements it.
type TurnEvents interface {
	Events(turnID string) ([]streaming.Event, error)
	Running(turnID string) bool
}

// TurnHandler handles turn HTTP requests
type TurnHandler struct {
	turns  llmSvc.TurnService
	events TurnEvents
	sseCfg *sse.Config
	logger *slog.Logger
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(turns llmSvc.TurnService, events TurnEvents, sseCfg *sse.Config, logger *slog.Logger) *TurnHandler {
	if sseCfg == nil {
		sseCfg = sse.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnHandler{turns: turns, events: events, sseCfg: sseCfg, logger: logger}
}

// runTurnBody is the POST body for a new turn.
type runTurnBody struct {
	TurnID    string   `json:"turn_id,omitempty"`
	Message   string   `json:"message"`
	ModelIDs  []string `json:"model_ids,omitempty"`
	Mode      llm.Mode `json:"mode,omitempty"`
	TimeoutMS int      `json:"timeout_ms,omitempty"` // zero uses the configured turn deadline
}

// CreateTurn runs one user turn and returns its ConsensusResult.
// POST /api/sessions/{id}/turns
func (h *TurnHandler) CreateTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var body runTurnBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &llmSvc.RunTurnRequest{
		TurnID:    body.TurnID,
		SessionID: sessionID,
		UserID:    httputil.GetUserID(r),
		Message:   body.Message,
		ModelIDs:  body.ModelIDs,
		Mode:      body.Mode,
	}
	if body.TimeoutMS > 0 {
		req.Deadline = time.Now().Add(time.Duration(body.TimeoutMS) * time.Millisecond)
	}

	result, err := h.turns.RunTurn(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// InterruptTurn cancels a running turn
// POST /api/turns/{id}/interrupt
func (h *TurnHandler) InterruptTurn(w http.ResponseWriter, r *http.Request) {
	turnID, ok := PathParam(w, r, "id", "Turn ID")
	if !ok {
		return
	}

	if err := h.turns.Interrupt(turnID); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"turn_id": turnID,
		"status":  "cancelled",
	})
}

// GetTurnEvents returns every recorded event of a turn
// GET /api/turns/{id}/events
func (h *TurnHandler) GetTurnEvents(w http.ResponseWriter, r *http.Request) {
	turnID, ok := PathParam(w, r, "id", "Turn ID")
	if !ok {
		return
	}

	events, err := h.events.Events(turnID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"turn_id": turnID,
		"running": h.events.Running(turnID),
		"events":  events,
	})
}

// StreamTurn streams turn events via Server-Sent Events. Clients resume with
// Last-Event-ID; the stream ends once the turn finishes and is drained.
// GET /api/turns/{id}/stream
func (h *TurnHandler) StreamTurn(w http.ResponseWriter, r *http.Request) {
	turnID, ok := PathParam(w, r, "id", "Turn ID")
	if !ok {
		return
	}

	// Fail before committing to an event stream
	if _, err := h.events.Events(turnID); err != nil {
		handleError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	keepAlive := sse.NewTickerKeepAlive(h.sseCfg.KeepAliveInterval)
	dropped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	lastSeq, _ := strconv.Atoi(r.Header.Get("Last-Event-ID"))
	poll := time.NewTicker(h.sseCfg.PollInterval)
	defer poll.Stop()

	h.logger.Debug("sse client connected", "turn_id", turnID, "last_event_id", lastSeq)

	for {
		// Check before reading so the final events of a just-finished turn are still sent
		running := h.events.Running(turnID)

		sent, err := h.flush(r.Context(), writer, turnID, lastSeq)
		if err != nil {
			h.logger.Debug("sse client gone", "turn_id", turnID, "error", err)
			return
		}
		lastSeq = sent
		if !running {
			return
		}

		select {
		case <-poll.C:
		case <-dropped:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// flush writes events after lastSeq and returns the new high-water mark.
func (h *TurnHandler) flush(ctx context.Context, writer *sse.Writer, turnID string, lastSeq int) (int, error) {
	events, err := h.events.Events(turnID)
	if err != nil {
		return lastSeq, err
	}
	for _, ev := range events {
		if ev.Seq <= lastSeq {
			continue
		}
		if err := ctx.Err(); err != nil {
			return lastSeq, err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to marshal event", "error", err, "turn_id", turnID, "seq", ev.Seq)
			lastSeq = ev.Seq
			continue
		}
		if err := writer.WriteEvent(strconv.Itoa(ev.Seq), ev.Type, data); err != nil {
			return lastSeq, err
		}
		lastSeq = ev.Seq
	}
	return lastSeq, nil
}
