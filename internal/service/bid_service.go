package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/notify"
)

// FeeSchedule holds the current platform fee percentages. They are
// snapshotted onto each bid at submission; later schedule changes never
// touch existing bids or holding records.
type FeeSchedule struct {
	BuyerPct  decimal.Decimal
	SellerPct decimal.Decimal
}

// BidService is the bid lifecycle machine. Every operation runs its guard
// reads and writes inside one storage transaction with exclusive row locks,
// so concurrent actors racing the same transition serialize and the loser
// gets a GuardError rather than a partial or duplicate effect.
//
// Lock ordering within a transaction: opportunity row first, then bid rows.
type BidService struct {
	db      domain.Transactor
	bids    domain.BidStore
	gateway *notify.Gateway
	bus     domain.EventBus
	fees    FeeSchedule
	logger  *slog.Logger
}

// NewBidService creates a BidService with all required dependencies.
func NewBidService(
	db domain.Transactor,
	bids domain.BidStore,
	gateway *notify.Gateway,
	bus domain.EventBus,
	fees FeeSchedule,
	logger *slog.Logger,
) *BidService {
	return &BidService{
		db:      db,
		bids:    bids,
		gateway: gateway,
		bus:     bus,
		fees:    fees,
		logger:  logger.With(slog.String("component", "bid_service")),
	}
}

// Submit places a new bid by sellerOrgID against a published opportunity.
// The platform fee percentages are copied onto the bid and frozen.
func (s *BidService) Submit(ctx context.Context, sellerOrgID, opportunityID string, amount decimal.Decimal, proposal string) (domain.Bid, error) {
	if !amount.IsPositive() {
		return domain.Bid{}, fmt.Errorf("bid_service: submit: amount must be positive: %w", domain.ErrInvalidInput)
	}

	var (
		bid domain.Bid
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		opp, err := tx.OpportunityForUpdate(ctx, opportunityID)
		if err != nil {
			return fmt.Errorf("bid_service: submit: %w", err)
		}
		if opp.Status != domain.OpportunityStatusPublished {
			return &domain.GuardError{Entity: "opportunity", ID: opp.ID, Op: "receive bids", Status: string(opp.Status)}
		}
		if amount.LessThan(opp.PriceFloor) {
			return fmt.Errorf("bid_service: submit: amount %s below price floor %s: %w",
				amount, opp.PriceFloor, domain.ErrInvalidInput)
		}

		bid = domain.Bid{
			ID:            uuid.New().String(),
			OpportunityID: opp.ID,
			SellerOrgID:   sellerOrgID,
			Amount:        amount,
			Proposal:      proposal,
			Status:        domain.BidStatusPending,
			BuyerFeePct:   s.fees.BuyerPct,
			SellerFeePct:  s.fees.SellerPct,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.CreateBid(ctx, bid); err != nil {
			return fmt.Errorf("bid_service: submit: %w", err)
		}

		return notifyOrg(ctx, tx, s.gateway, &out, opp.BuyerOrgID,
			domain.NotificationBidSubmitted,
			"New bid received",
			fmt.Sprintf("A bid of %s was submitted against %q.", amount.StringFixed(2), opp.Title),
			&opp.ID, &bid.ID)
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "bid_submitted",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	s.logger.InfoContext(ctx, "bid submitted",
		slog.String("bid_id", bid.ID),
		slog.String("opportunity_id", bid.OpportunityID),
		slog.String("amount", bid.Amount.StringFixed(2)),
	)
	return bid, nil
}

// Approve accepts the bid, declining every other open bid on the same
// opportunity, moving the opportunity to in_progress, and creating the
// paired holding record from a fee snapshot. All effects commit as one unit;
// approving an already-decided bid is a GuardError and mutates nothing.
func (s *BidService) Approve(ctx context.Context, bidID string) (domain.Bid, error) {
	var (
		bid domain.Bid
		rec domain.HoldingRecord
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		// Unlocked pre-read to learn the opportunity; the authoritative
		// guard read happens again under lock below.
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}
		if !bid.Status.Open() {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "approve", Status: string(bid.Status)}
		}

		// Decline the competition in the same unit of work so no window
		// exists where two bids on one opportunity are both winnable.
		open, err := tx.OpenBidsForUpdate(ctx, opp.ID)
		if err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}
		for _, other := range open {
			if other.ID == bid.ID {
				continue
			}
			if err := tx.UpdateBidStatus(ctx, other.ID, domain.BidStatusDeclined, domain.DeclineReasonOutcompeted); err != nil {
				return fmt.Errorf("bid_service: approve: decline competitor %s: %w", other.ID, err)
			}
			if err := notifyOrg(ctx, tx, s.gateway, &out, other.SellerOrgID,
				domain.NotificationBidDeclined,
				"Bid not selected",
				fmt.Sprintf("Your bid on %q was not selected: %s.", opp.Title, domain.DeclineReasonOutcompeted),
				&opp.ID, &other.ID); err != nil {
				return err
			}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusApproved, ""); err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}
		if err := tx.UpdateOpportunityStatus(ctx, opp.ID, domain.OpportunityStatusInProgress); err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}

		fees, err := domain.CalculateFees(bid.Amount, bid.BuyerFeePct, bid.SellerFeePct)
		if err != nil {
			return fmt.Errorf("bid_service: approve: %w", err)
		}
		rec = domain.HoldingRecord{
			ID:            uuid.New().String(),
			BidID:         bid.ID,
			OpportunityID: opp.ID,
			Amount:        bid.Amount,
			BuyerTotal:    fees.BuyerTotal,
			SellerNet:     fees.SellerNet,
			PlatformFee:   fees.PlatformFee,
			BuyerFeePct:   fees.BuyerFeePct,
			SellerFeePct:  fees.SellerFeePct,
			Status:        domain.HoldingStatusPending,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.CreateHolding(ctx, rec); err != nil {
			return fmt.Errorf("bid_service: approve: create holding record: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, bid.SellerOrgID,
			domain.NotificationBidApproved,
			"Bid approved",
			fmt.Sprintf("Your bid of %s on %q was approved. Work may begin once payment is received.",
				bid.Amount.StringFixed(2), opp.Title),
			&opp.ID, &bid.ID); err != nil {
			return err
		}
		if err := notifyOperations(ctx, tx, s.gateway, &out,
			domain.NotificationBidApproved,
			"Escrow record created",
			fmt.Sprintf("Bid %s was approved; holding record %s awaits payment instructions (buyer owes %s).",
				bid.ID, rec.ID, rec.BuyerTotal.StringFixed(2)),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		bid.Status = domain.BidStatusApproved
		bid.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "bid_approved",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		RecordID:      rec.ID,
		Status:        string(bid.Status),
	})
	s.logger.InfoContext(ctx, "bid approved",
		slog.String("bid_id", bid.ID),
		slog.String("opportunity_id", bid.OpportunityID),
		slog.String("record_id", rec.ID),
	)
	return bid, nil
}

// Decline rejects an open bid on the buyer's behalf, recording the reason.
func (s *BidService) Decline(ctx context.Context, bidID, reason string) (domain.Bid, error) {
	if reason == "" {
		reason = "declined by buyer"
	}

	var (
		bid domain.Bid
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: decline: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("bid_service: decline: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: decline: %w", err)
		}
		if !bid.Status.Open() {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "decline", Status: string(bid.Status)}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusDeclined, reason); err != nil {
			return fmt.Errorf("bid_service: decline: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, bid.SellerOrgID,
			domain.NotificationBidDeclined,
			"Bid declined",
			fmt.Sprintf("Your bid on %q was declined by the buyer: %s", opp.Title, reason),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		bid.Status = domain.BidStatusDeclined
		bid.DeclineReason = reason
		bid.DeclinedAt = &now
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "bid_declined",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	s.logger.InfoContext(ctx, "bid declined",
		slog.String("bid_id", bid.ID),
		slog.String("reason", reason),
	)
	return bid, nil
}

// MarkUnderReview moves a pending bid into the buyer's review queue.
func (s *BidService) MarkUnderReview(ctx context.Context, bidID string) (domain.Bid, error) {
	var bid domain.Bid
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: mark under review: %w", err)
		}
		if _, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID); err != nil {
			return fmt.Errorf("bid_service: mark under review: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: mark under review: %w", err)
		}
		if bid.Status != domain.BidStatusPending {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "mark under review", Status: string(bid.Status)}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusUnderReview, ""); err != nil {
			return fmt.Errorf("bid_service: mark under review: %w", err)
		}
		bid.Status = domain.BidStatusUnderReview
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, nil, domain.WorkflowEvent{
		Event:         "bid_under_review",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	return bid, nil
}

// Withdraw lets a seller pull an open bid. Recorded as a decline with a
// withdrawal reason; terminal like any other decline.
func (s *BidService) Withdraw(ctx context.Context, bidID string) (domain.Bid, error) {
	var bid domain.Bid
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: withdraw: %w", err)
		}
		if _, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID); err != nil {
			return fmt.Errorf("bid_service: withdraw: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: withdraw: %w", err)
		}
		if !bid.Status.Open() {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "withdraw", Status: string(bid.Status)}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusDeclined, domain.DeclineReasonWithdrawn); err != nil {
			return fmt.Errorf("bid_service: withdraw: %w", err)
		}
		bid.Status = domain.BidStatusDeclined
		bid.DeclineReason = domain.DeclineReasonWithdrawn
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, nil, domain.WorkflowEvent{
		Event:         "bid_withdrawn",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	return bid, nil
}

// RequestCompletion is the seller's claim that the engagement is done.
func (s *BidService) RequestCompletion(ctx context.Context, bidID string) (domain.Bid, error) {
	var (
		bid domain.Bid
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: request completion: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("bid_service: request completion: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: request completion: %w", err)
		}
		if bid.Status != domain.BidStatusLive {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "request completion", Status: string(bid.Status)}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusCompletionPending, ""); err != nil {
			return fmt.Errorf("bid_service: request completion: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, opp.BuyerOrgID,
			domain.NotificationCompletionRequested,
			"Completion requested",
			fmt.Sprintf("The seller reports %q complete. Please verify the work to release payment.", opp.Title),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		bid.Status = domain.BidStatusCompletionPending
		bid.CompletionRequestedAt = &now
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "completion_requested",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	s.logger.InfoContext(ctx, "completion requested",
		slog.String("bid_id", bid.ID),
	)
	return bid, nil
}

// VerifyCompletion is the buyer's confirmation of completed work. It closes
// the opportunity and tells operations staff the paired holding record may
// be released.
func (s *BidService) VerifyCompletion(ctx context.Context, bidID string) (domain.Bid, error) {
	var (
		bid domain.Bid
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.bids.GetByID(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: verify completion: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("bid_service: verify completion: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, bidID)
		if err != nil {
			return fmt.Errorf("bid_service: verify completion: %w", err)
		}
		if bid.Status != domain.BidStatusCompletionPending {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "verify completion", Status: string(bid.Status)}
		}

		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusCompleted, ""); err != nil {
			return fmt.Errorf("bid_service: verify completion: %w", err)
		}
		if err := tx.UpdateOpportunityStatus(ctx, opp.ID, domain.OpportunityStatusCompleted); err != nil {
			return fmt.Errorf("bid_service: verify completion: %w", err)
		}

		if err := notifyOperations(ctx, tx, s.gateway, &out,
			domain.NotificationReleaseReady,
			"Completion verified",
			fmt.Sprintf("The buyer verified completion of bid %s; its holding record may now be released.", bid.ID),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		bid.Status = domain.BidStatusCompleted
		bid.CompletedAt = &now
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "completion_verified",
		OpportunityID: bid.OpportunityID,
		BidID:         bid.ID,
		Status:        string(bid.Status),
	})
	s.logger.InfoContext(ctx, "completion verified",
		slog.String("bid_id", bid.ID),
		slog.String("opportunity_id", bid.OpportunityID),
	)
	return bid, nil
}

// GetBid retrieves a single bid by ID.
func (s *BidService) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	bid, err := s.bids.GetByID(ctx, id)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("bid_service: get bid %q: %w", id, err)
	}
	return bid, nil
}

// ListByOpportunity returns the bids on an opportunity with pagination.
func (s *BidService) ListByOpportunity(ctx context.Context, opportunityID string, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := s.bids.ListByOpportunity(ctx, opportunityID, opts)
	if err != nil {
		return nil, fmt.Errorf("bid_service: list by opportunity %q: %w", opportunityID, err)
	}
	return bids, nil
}

// ListBySeller returns the bids owned by a seller org with pagination.
func (s *BidService) ListBySeller(ctx context.Context, sellerOrgID string, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := s.bids.ListBySeller(ctx, sellerOrgID, opts)
	if err != nil {
		return nil, fmt.Errorf("bid_service: list by seller %q: %w", sellerOrgID, err)
	}
	return bids, nil
}

// afterCommit publishes the transition event and dispatches external
// notification copies once the transaction has committed.
func (s *BidService) afterCommit(ctx context.Context, out []outbound, evt domain.WorkflowEvent) {
	publishEvent(ctx, s.bus, s.logger, evt)
	for _, o := range out {
		s.gateway.Dispatch(o.typ, o.title, o.message)
	}
}

// markLiveInTx applies the approved → live transition to an already-locked
// bid inside the caller's transaction. Only the holding machine's payment
// confirmation may call it; the two halves of that coupling point must land
// in the same commit.
func markLiveInTx(ctx context.Context, tx domain.WorkflowTx, bid domain.Bid) (domain.Bid, error) {
	if bid.Status != domain.BidStatusApproved {
		return domain.Bid{}, &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "mark live", Status: string(bid.Status)}
	}
	if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidStatusLive, ""); err != nil {
		return domain.Bid{}, fmt.Errorf("mark bid %s live: %w", bid.ID, err)
	}
	now := time.Now().UTC()
	bid.Status = domain.BidStatusLive
	bid.LiveAt = &now
	return bid, nil
}
