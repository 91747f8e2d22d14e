package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/service"
)

// BidHandler serves the bid lifecycle endpoints.
type BidHandler struct {
	workflow *service.WorkflowService
	logger   *slog.Logger
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(workflow *service.WorkflowService, logger *slog.Logger) *BidHandler {
	return &BidHandler{
		workflow: workflow,
		logger:   logger.With(slog.String("handler", "bid")),
	}
}

type submitBidRequest struct {
	OpportunityID string          `json:"opportunity_id"`
	Amount        decimal.Decimal `json:"amount"`
	Proposal      string          `json:"proposal"`
}

// Submit places a bid against a published opportunity.
// POST /api/bids
func (h *BidHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req submitBidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.workflow.SubmitBid(r.Context(), actor, req.OpportunityID, req.Amount, req.Proposal)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBidResponse(bid))
}

// Get returns one bid.
// GET /api/bids/{id}
func (h *BidHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	bid, err := h.workflow.GetBid(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponse(bid))
}

// List returns the caller's seller org's bids.
// GET /api/bids
func (h *BidHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	bids, err := h.workflow.ListMyBids(r.Context(), actor, parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": toBidResponses(bids)})
}

// Review moves a pending bid into the buyer's review queue.
// POST /api/bids/{id}/review
func (h *BidHandler) Review(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.MarkBidUnderReview)
}

// Approve accepts a bid, declining competitors and opening escrow.
// POST /api/bids/{id}/approve
func (h *BidHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.ApproveBid)
}

type declineBidRequest struct {
	Reason string `json:"reason"`
}

// Decline rejects a bid with an optional reason.
// POST /api/bids/{id}/decline
func (h *BidHandler) Decline(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req declineBidRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	bid, err := h.workflow.DeclineBid(r.Context(), actor, pathParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponse(bid))
}

// Withdraw pulls the caller's own open bid.
// POST /api/bids/{id}/withdraw
func (h *BidHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.WithdrawBid)
}

// RequestCompletion reports the caller's live engagement as done.
// POST /api/bids/{id}/request-completion
func (h *BidHandler) RequestCompletion(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.RequestCompletion)
}

// VerifyCompletion confirms the seller's completed work.
// POST /api/bids/{id}/verify-completion
func (h *BidHandler) VerifyCompletion(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflow.VerifyCompletion)
}

// GetHolding returns the escrow record paired with a bid.
// GET /api/bids/{id}/holding
func (h *BidHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.workflow.GetHoldingForBid(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingResponse(rec))
}

// transition applies a bodyless single-bid workflow call.
func (h *BidHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error)) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	bid, err := fn(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBidResponse(bid))
}
