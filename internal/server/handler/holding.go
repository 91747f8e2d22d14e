package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/service"
)

// HoldingHandler serves the operations-side escrow endpoints.
type HoldingHandler struct {
	workflow *service.WorkflowService
	logger   *slog.Logger
}

// NewHoldingHandler creates a HoldingHandler.
func NewHoldingHandler(workflow *service.WorkflowService, logger *slog.Logger) *HoldingHandler {
	return &HoldingHandler{
		workflow: workflow,
		logger:   logger.With(slog.String("handler", "holding")),
	}
}

// Get returns one escrow record.
// GET /api/holdings/{id}
func (h *HoldingHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.workflow.GetHolding(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingResponse(rec))
}

// SendInstructions issues payment instructions to the buyer.
// POST /api/holdings/{id}/send-instructions
func (h *HoldingHandler) SendInstructions(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.SendPaymentInstructions)
}

// MarkInitiated records the buyer's transfer as in flight.
// POST /api/holdings/{id}/mark-initiated
func (h *HoldingHandler) MarkInitiated(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.MarkPaymentInitiated)
}

// ConfirmPayment records receipt of funds and activates the paired bid.
// POST /api/holdings/{id}/confirm-payment
func (h *HoldingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.ConfirmPayment)
}

// Release pays the seller once funds are held and work is verified.
// POST /api/holdings/{id}/release
func (h *HoldingHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.ReleasePayment)
}

type cancelHoldingRequest struct {
	Reason string `json:"reason"`
}

// Cancel aborts a non-terminal escrow record.
// POST /api/holdings/{id}/cancel
func (h *HoldingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req cancelHoldingRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rec, err := h.workflow.CancelHolding(r.Context(), actor, pathParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingResponse(rec))
}

func (h *HoldingHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error)) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := fn(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingResponse(rec))
}
