package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// WorkflowService is the orchestrator fronting the bid and holding machines.
// It is the only entry point the transport layer calls: every exported
// method authorizes the actor (role, then ownership) before delegating, so a
// caller who fails authorization never reaches a machine guard and learns
// nothing about the entity's state. Ownership is immutable, so those checks
// read outside the transition transactions.
type WorkflowService struct {
	bids     *BidService
	holdings *HoldingService
	opps     *OpportunityService

	bidStore     domain.BidStore
	holdingStore domain.HoldingStore
	oppStore     domain.OpportunityStore

	logger *slog.Logger
}

// NewWorkflowService wires the orchestrator over the three machines.
func NewWorkflowService(
	bids *BidService,
	holdings *HoldingService,
	opps *OpportunityService,
	bidStore domain.BidStore,
	holdingStore domain.HoldingStore,
	oppStore domain.OpportunityStore,
	logger *slog.Logger,
) *WorkflowService {
	return &WorkflowService{
		bids:         bids,
		holdings:     holdings,
		opps:         opps,
		bidStore:     bidStore,
		holdingStore: holdingStore,
		oppStore:     oppStore,
		logger:       logger.With(slog.String("component", "workflow_service")),
	}
}

// --- buyer surface ---

// CreateOpportunity posts a draft opportunity owned by the actor's org.
func (s *WorkflowService) CreateOpportunity(ctx context.Context, actor domain.Actor, title, description string, priceFloor decimal.Decimal) (domain.Opportunity, error) {
	if err := requireRole(actor, domain.OrgRoleBuyer); err != nil {
		return domain.Opportunity{}, err
	}
	return s.opps.Create(ctx, actor.OrgID, title, description, priceFloor)
}

// PublishOpportunity opens the actor's draft opportunity to bids.
func (s *WorkflowService) PublishOpportunity(ctx context.Context, actor domain.Actor, opportunityID string) (domain.Opportunity, error) {
	if err := s.requireOpportunityOwner(ctx, actor, opportunityID); err != nil {
		return domain.Opportunity{}, err
	}
	return s.opps.Publish(ctx, opportunityID)
}

// CancelOpportunity withdraws the actor's opportunity before a bid wins it.
func (s *WorkflowService) CancelOpportunity(ctx context.Context, actor domain.Actor, opportunityID string) (domain.Opportunity, error) {
	if err := s.requireOpportunityOwner(ctx, actor, opportunityID); err != nil {
		return domain.Opportunity{}, err
	}
	return s.opps.Cancel(ctx, opportunityID)
}

// MarkBidUnderReview moves a pending bid on the actor's opportunity into
// review.
func (s *WorkflowService) MarkBidUnderReview(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	if err := s.requireBidBuyer(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.MarkUnderReview(ctx, bidID)
}

// ApproveBid accepts a bid on the actor's opportunity, declining all
// competitors and opening the escrow record in the same commit.
func (s *WorkflowService) ApproveBid(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	if err := s.requireBidBuyer(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.Approve(ctx, bidID)
}

// DeclineBid rejects a bid on the actor's opportunity.
func (s *WorkflowService) DeclineBid(ctx context.Context, actor domain.Actor, bidID, reason string) (domain.Bid, error) {
	if err := s.requireBidBuyer(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.Decline(ctx, bidID, reason)
}

// VerifyCompletion confirms the seller's completed work on the actor's
// opportunity, unblocking release of the escrowed funds.
func (s *WorkflowService) VerifyCompletion(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	if err := s.requireBidBuyer(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.VerifyCompletion(ctx, bidID)
}

// --- seller surface ---

// SubmitBid places a bid for the actor's seller org.
func (s *WorkflowService) SubmitBid(ctx context.Context, actor domain.Actor, opportunityID string, amount decimal.Decimal, proposal string) (domain.Bid, error) {
	if err := requireRole(actor, domain.OrgRoleSeller); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.Submit(ctx, actor.OrgID, opportunityID, amount, proposal)
}

// WithdrawBid pulls the actor's own open bid.
func (s *WorkflowService) WithdrawBid(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	if err := s.requireBidSeller(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.Withdraw(ctx, bidID)
}

// RequestCompletion reports the actor's live engagement as done.
func (s *WorkflowService) RequestCompletion(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	if err := s.requireBidSeller(ctx, actor, bidID); err != nil {
		return domain.Bid{}, err
	}
	return s.bids.RequestCompletion(ctx, bidID)
}

// --- operations surface ---

// SendPaymentInstructions issues payment instructions for a pending escrow
// record. Operations staff only.
func (s *WorkflowService) SendPaymentInstructions(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.SendInstructions(ctx, recordID)
}

// MarkPaymentInitiated records the buyer's transfer as in flight.
func (s *WorkflowService) MarkPaymentInitiated(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.MarkPaymentInitiated(ctx, recordID)
}

// ConfirmPayment records receipt of the buyer's funds and activates the
// paired bid in the same commit.
func (s *WorkflowService) ConfirmPayment(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.ConfirmPayment(ctx, recordID)
}

// ReleasePayment pays the seller once funds are held and completion is
// verified.
func (s *WorkflowService) ReleasePayment(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.Release(ctx, recordID)
}

// CancelHolding aborts a non-terminal escrow record.
func (s *WorkflowService) CancelHolding(ctx context.Context, actor domain.Actor, recordID, reason string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.Cancel(ctx, recordID, reason)
}

// --- reads ---

// GetOpportunity is open to any authenticated actor; published listings are
// marketplace-public.
func (s *WorkflowService) GetOpportunity(ctx context.Context, actor domain.Actor, id string) (domain.Opportunity, error) {
	opp, err := s.opps.Get(ctx, id)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if opp.Status == domain.OpportunityStatusDraft && opp.BuyerOrgID != actor.OrgID && !actor.Role.Elevated() {
		return domain.Opportunity{}, fmt.Errorf("workflow_service: get opportunity: %w", domain.ErrNotFound)
	}
	return opp, nil
}

// ListPublishedOpportunities lists engagements open for bidding.
func (s *WorkflowService) ListPublishedOpportunities(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	return s.opps.ListPublished(ctx, opts)
}

// ListMyOpportunities lists the actor's buyer org's opportunities.
func (s *WorkflowService) ListMyOpportunities(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Opportunity, error) {
	if err := requireRole(actor, domain.OrgRoleBuyer); err != nil {
		return nil, err
	}
	return s.opps.ListByBuyer(ctx, actor.OrgID, opts)
}

// GetBid returns a bid visible to the actor: its seller, the opportunity's
// buyer, or operations staff.
func (s *WorkflowService) GetBid(ctx context.Context, actor domain.Actor, bidID string) (domain.Bid, error) {
	bid, err := s.bids.GetBid(ctx, bidID)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := s.authorizeBidRead(ctx, actor, bid); err != nil {
		return domain.Bid{}, err
	}
	return bid, nil
}

// ListBidsForOpportunity lists the bids on an opportunity the actor owns (or
// all of them for operations staff).
func (s *WorkflowService) ListBidsForOpportunity(ctx context.Context, actor domain.Actor, opportunityID string, opts domain.ListOpts) ([]domain.Bid, error) {
	if err := s.requireOpportunityOwner(ctx, actor, opportunityID); err != nil {
		return nil, err
	}
	return s.bids.ListByOpportunity(ctx, opportunityID, opts)
}

// ListMyBids lists the actor's seller org's bids.
func (s *WorkflowService) ListMyBids(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Bid, error) {
	if err := requireRole(actor, domain.OrgRoleSeller); err != nil {
		return nil, err
	}
	return s.bids.ListBySeller(ctx, actor.OrgID, opts)
}

// GetHoldingForBid returns the escrow record paired with a bid the actor may
// see.
func (s *WorkflowService) GetHoldingForBid(ctx context.Context, actor domain.Actor, bidID string) (domain.HoldingRecord, error) {
	bid, err := s.bids.GetBid(ctx, bidID)
	if err != nil {
		return domain.HoldingRecord{}, err
	}
	if err := s.authorizeBidRead(ctx, actor, bid); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.GetRecordByBid(ctx, bidID)
}

// GetHolding returns an escrow record. Operations staff only; buyers and
// sellers reach their record through its bid.
func (s *WorkflowService) GetHolding(ctx context.Context, actor domain.Actor, recordID string) (domain.HoldingRecord, error) {
	if err := requireElevated(actor); err != nil {
		return domain.HoldingRecord{}, err
	}
	return s.holdings.GetRecord(ctx, recordID)
}

// --- authorization helpers ---

func requireRole(actor domain.Actor, role domain.OrgRole) error {
	if actor.Role == role || actor.Role.Elevated() {
		return nil
	}
	return fmt.Errorf("workflow_service: role %q required: %w", role, domain.ErrUnauthorized)
}

func requireElevated(actor domain.Actor) error {
	if actor.Role.Elevated() {
		return nil
	}
	return fmt.Errorf("workflow_service: operations role required: %w", domain.ErrUnauthorized)
}

// requireOpportunityOwner admits the buyer org that owns the opportunity, or
// operations staff.
func (s *WorkflowService) requireOpportunityOwner(ctx context.Context, actor domain.Actor, opportunityID string) error {
	if actor.Role.Elevated() {
		return nil
	}
	opp, err := s.oppStore.GetByID(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("workflow_service: authorize opportunity %q: %w", opportunityID, err)
	}
	if opp.BuyerOrgID != actor.OrgID {
		return fmt.Errorf("workflow_service: opportunity %q not owned by caller: %w", opportunityID, domain.ErrUnauthorized)
	}
	return nil
}

// requireBidBuyer admits the buyer org that owns the bid's opportunity.
func (s *WorkflowService) requireBidBuyer(ctx context.Context, actor domain.Actor, bidID string) error {
	if actor.Role.Elevated() {
		return nil
	}
	bid, err := s.bidStore.GetByID(ctx, bidID)
	if err != nil {
		return fmt.Errorf("workflow_service: authorize bid %q: %w", bidID, err)
	}
	return s.requireOpportunityOwner(ctx, actor, bid.OpportunityID)
}

// requireBidSeller admits the seller org that placed the bid.
func (s *WorkflowService) requireBidSeller(ctx context.Context, actor domain.Actor, bidID string) error {
	if actor.Role.Elevated() {
		return nil
	}
	bid, err := s.bidStore.GetByID(ctx, bidID)
	if err != nil {
		return fmt.Errorf("workflow_service: authorize bid %q: %w", bidID, err)
	}
	if bid.SellerOrgID != actor.OrgID {
		return fmt.Errorf("workflow_service: bid %q not owned by caller: %w", bidID, domain.ErrUnauthorized)
	}
	return nil
}

// authorizeBidRead admits the bid's seller, the opportunity's buyer, and
// operations staff.
func (s *WorkflowService) authorizeBidRead(ctx context.Context, actor domain.Actor, bid domain.Bid) error {
	if actor.Role.Elevated() || bid.SellerOrgID == actor.OrgID {
		return nil
	}
	opp, err := s.oppStore.GetByID(ctx, bid.OpportunityID)
	if err != nil {
		return fmt.Errorf("workflow_service: authorize bid read: %w", err)
	}
	if opp.BuyerOrgID != actor.OrgID {
		return fmt.Errorf("workflow_service: bid %q not visible to caller: %w", bid.ID, domain.ErrUnauthorized)
	}
	return nil
}
