package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/service"
)

// OpportunityHandler serves the opportunity endpoints.
type OpportunityHandler struct {
	workflow *service.WorkflowService
	logger   *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(workflow *service.WorkflowService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		workflow: workflow,
		logger:   logger.With(slog.String("handler", "opportunity")),
	}
}

type createOpportunityRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	PriceFloor  decimal.Decimal `json:"price_floor"`
}

// Create posts a new draft opportunity.
// POST /api/opportunities
func (h *OpportunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createOpportunityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opp, err := h.workflow.CreateOpportunity(r.Context(), actor, req.Title, req.Description, req.PriceFloor)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOpportunityResponse(opp))
}

// Publish opens a draft opportunity to bids.
// POST /api/opportunities/{id}/publish
func (h *OpportunityHandler) Publish(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	opp, err := h.workflow.PublishOpportunity(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(opp))
}

// Cancel withdraws an opportunity before a bid wins it.
// POST /api/opportunities/{id}/cancel
func (h *OpportunityHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	opp, err := h.workflow.CancelOpportunity(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(opp))
}

// Get returns one opportunity.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	opp, err := h.workflow.GetOpportunity(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(opp))
}

// List returns published opportunities, or the caller's own with ?mine=true.
// GET /api/opportunities
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	var err error
	var opps []opportunityResponse
	if r.URL.Query().Get("mine") == "true" {
		list, listErr := h.workflow.ListMyOpportunities(r.Context(), actor, opts)
		opps, err = toOpportunityResponses(list), listErr
	} else {
		list, listErr := h.workflow.ListPublishedOpportunities(r.Context(), opts)
		opps, err = toOpportunityResponses(list), listErr
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// ListBids returns the bids on an opportunity the caller owns.
// GET /api/opportunities/{id}/bids
func (h *OpportunityHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	bids, err := h.workflow.ListBidsForOpportunity(r.Context(), actor, pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": toBidResponses(bids)})
}
