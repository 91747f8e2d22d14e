package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
	"github.com/pilotdeskhq/pilotdesk/internal/notify"
)

// HoldingService is the holding record machine: the escrow side of an
// approved bid. It owns every status move on holding records and the two
// coupling points with the bid machine (activation on receipt, the release
// guard on verified completion).
//
// Lock ordering within a transaction: opportunity, then bid, then holding.
type HoldingService struct {
	db       domain.Transactor
	holdings domain.HoldingStore
	gateway  *notify.Gateway
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewHoldingService creates a HoldingService with all required dependencies.
func NewHoldingService(
	db domain.Transactor,
	holdings domain.HoldingStore,
	gateway *notify.Gateway,
	bus domain.EventBus,
	logger *slog.Logger,
) *HoldingService {
	return &HoldingService{
		db:       db,
		holdings: holdings,
		gateway:  gateway,
		bus:      bus,
		logger:   logger.With(slog.String("component", "holding_service")),
	}
}

// SendInstructions records that operations staff issued payment instructions
// to the buyer, and delivers those instructions with the exact buyer total.
func (s *HoldingService) SendInstructions(ctx context.Context, recordID string) (domain.HoldingRecord, error) {
	var (
		rec domain.HoldingRecord
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.holdings.GetByID(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: send instructions: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("holding_service: send instructions: %w", err)
		}
		bid, err := tx.BidForUpdate(ctx, pre.BidID)
		if err != nil {
			return fmt.Errorf("holding_service: send instructions: %w", err)
		}
		rec, err = tx.HoldingForUpdate(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: send instructions: %w", err)
		}
		if rec.Status != domain.HoldingStatusPending {
			return &domain.GuardError{Entity: "holding_record", ID: rec.ID, Op: "send instructions", Status: string(rec.Status)}
		}
		if bid.Status != domain.BidStatusApproved {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "send payment instructions", Status: string(bid.Status)}
		}

		if err := tx.UpdateHoldingStatus(ctx, rec.ID, domain.HoldingStatusInstructionsSent); err != nil {
			return fmt.Errorf("holding_service: send instructions: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, opp.BuyerOrgID,
			domain.NotificationPaymentInstructions,
			"Payment instructions",
			fmt.Sprintf("Please remit %s to fund the engagement on %q (bid amount %s plus fees).",
				rec.BuyerTotal.StringFixed(2), opp.Title, rec.Amount.StringFixed(2)),
			&opp.ID, &rec.BidID); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Status = domain.HoldingStatusInstructionsSent
		rec.InstructionsSentAt = &now
		return nil
	})
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "instructions_sent",
		OpportunityID: rec.OpportunityID,
		BidID:         rec.BidID,
		RecordID:      rec.ID,
		Status:        string(rec.Status),
	})
	s.logger.InfoContext(ctx, "payment instructions sent",
		slog.String("record_id", rec.ID),
		slog.String("buyer_total", rec.BuyerTotal.StringFixed(2)),
	)
	return rec, nil
}

// MarkPaymentInitiated notes the buyer's reported transfer as in flight. The
// step is optional; receipt may be confirmed directly from instructions_sent.
func (s *HoldingService) MarkPaymentInitiated(ctx context.Context, recordID string) (domain.HoldingRecord, error) {
	var rec domain.HoldingRecord
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		var err error
		rec, err = tx.HoldingForUpdate(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: mark payment initiated: %w", err)
		}
		if rec.Status != domain.HoldingStatusInstructionsSent {
			return &domain.GuardError{Entity: "holding_record", ID: rec.ID, Op: "mark payment initiated", Status: string(rec.Status)}
		}

		if err := tx.UpdateHoldingStatus(ctx, rec.ID, domain.HoldingStatusPaymentInitiated); err != nil {
			return fmt.Errorf("holding_service: mark payment initiated: %w", err)
		}

		now := time.Now().UTC()
		rec.Status = domain.HoldingStatusPaymentInitiated
		rec.PaymentInitiatedAt = &now
		return nil
	})
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	s.afterCommit(ctx, nil, domain.WorkflowEvent{
		Event:         "payment_initiated",
		OpportunityID: rec.OpportunityID,
		BidID:         rec.BidID,
		RecordID:      rec.ID,
		Status:        string(rec.Status),
	})
	return rec, nil
}

// ConfirmPayment records that the buyer's funds arrived in custody and, in
// the same commit, moves the paired bid from approved to live. The two
// writes are inseparable: a record can never be received while its bid is
// anything but live or later.
func (s *HoldingService) ConfirmPayment(ctx context.Context, recordID string) (domain.HoldingRecord, error) {
	var (
		rec domain.HoldingRecord
		bid domain.Bid
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.holdings.GetByID(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}
		bid, err = tx.BidForUpdate(ctx, pre.BidID)
		if err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}
		rec, err = tx.HoldingForUpdate(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}
		if !rec.Status.CanTransition(domain.HoldingStatusReceived) {
			return &domain.GuardError{Entity: "holding_record", ID: rec.ID, Op: "confirm payment", Status: string(rec.Status)}
		}

		bid, err = markLiveInTx(ctx, tx, bid)
		if err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}
		if err := tx.UpdateHoldingStatus(ctx, rec.ID, domain.HoldingStatusReceived); err != nil {
			return fmt.Errorf("holding_service: confirm payment: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, bid.SellerOrgID,
			domain.NotificationWorkAuthorized,
			"Work authorized",
			fmt.Sprintf("Payment for %q is in custody. You are authorized to begin work.", opp.Title),
			&opp.ID, &bid.ID); err != nil {
			return err
		}
		if err := notifyOrg(ctx, tx, s.gateway, &out, opp.BuyerOrgID,
			domain.NotificationPaymentReceived,
			"Payment received",
			fmt.Sprintf("Your payment of %s for %q is now held in custody.", rec.BuyerTotal.StringFixed(2), opp.Title),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Status = domain.HoldingStatusReceived
		rec.ReceivedAt = &now
		return nil
	})
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "payment_received",
		OpportunityID: rec.OpportunityID,
		BidID:         rec.BidID,
		RecordID:      rec.ID,
		Status:        string(rec.Status),
	})
	s.logger.InfoContext(ctx, "payment confirmed, bid live",
		slog.String("record_id", rec.ID),
		slog.String("bid_id", bid.ID),
	)
	return rec, nil
}

// Release pays the seller their net amount. It requires both halves of the
// coupling: funds received and the paired bid verified complete. No other
// combination releases money.
func (s *HoldingService) Release(ctx context.Context, recordID string) (domain.HoldingRecord, error) {
	var (
		rec domain.HoldingRecord
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.holdings.GetByID(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: release: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("holding_service: release: %w", err)
		}
		bid, err := tx.BidForUpdate(ctx, pre.BidID)
		if err != nil {
			return fmt.Errorf("holding_service: release: %w", err)
		}
		rec, err = tx.HoldingForUpdate(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: release: %w", err)
		}
		if rec.Status != domain.HoldingStatusReceived {
			return &domain.GuardError{Entity: "holding_record", ID: rec.ID, Op: "release", Status: string(rec.Status)}
		}
		if bid.Status != domain.BidStatusCompleted {
			return &domain.GuardError{Entity: "bid", ID: bid.ID, Op: "release holding record", Status: string(bid.Status)}
		}

		if err := tx.UpdateHoldingStatus(ctx, rec.ID, domain.HoldingStatusReleased); err != nil {
			return fmt.Errorf("holding_service: release: %w", err)
		}

		if err := notifyOrg(ctx, tx, s.gateway, &out, bid.SellerOrgID,
			domain.NotificationPaymentReleased,
			"Payment released",
			fmt.Sprintf("Payment of %s for %q has been released to your organization.",
				rec.SellerNet.StringFixed(2), opp.Title),
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Status = domain.HoldingStatusReleased
		rec.ReleasedAt = &now
		return nil
	})
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "payment_released",
		OpportunityID: rec.OpportunityID,
		BidID:         rec.BidID,
		RecordID:      rec.ID,
		Status:        string(rec.Status),
	})
	s.logger.InfoContext(ctx, "holding record released",
		slog.String("record_id", rec.ID),
		slog.String("seller_net", rec.SellerNet.StringFixed(2)),
	)
	return rec, nil
}

// Cancel aborts a holding record from any non-terminal state, for example
// when an engagement falls through before funds move. Any refund of already
// received money happens off-platform; the record itself just closes.
func (s *HoldingService) Cancel(ctx context.Context, recordID, reason string) (domain.HoldingRecord, error) {
	if reason == "" {
		reason = "cancelled by operations"
	}

	var (
		rec domain.HoldingRecord
		out []outbound
	)
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx domain.WorkflowTx) error {
		pre, err := s.holdings.GetByID(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: cancel: %w", err)
		}

		opp, err := tx.OpportunityForUpdate(ctx, pre.OpportunityID)
		if err != nil {
			return fmt.Errorf("holding_service: cancel: %w", err)
		}
		bid, err := tx.BidForUpdate(ctx, pre.BidID)
		if err != nil {
			return fmt.Errorf("holding_service: cancel: %w", err)
		}
		rec, err = tx.HoldingForUpdate(ctx, recordID)
		if err != nil {
			return fmt.Errorf("holding_service: cancel: %w", err)
		}
		if rec.Status.Terminal() {
			return &domain.GuardError{Entity: "holding_record", ID: rec.ID, Op: "cancel", Status: string(rec.Status)}
		}

		if err := tx.UpdateHoldingStatus(ctx, rec.ID, domain.HoldingStatusCancelled); err != nil {
			return fmt.Errorf("holding_service: cancel: %w", err)
		}

		msg := fmt.Sprintf("The escrow record for %q was cancelled: %s", opp.Title, reason)
		if err := notifyOrg(ctx, tx, s.gateway, &out, opp.BuyerOrgID,
			domain.NotificationHoldingCancelled, "Escrow cancelled", msg,
			&opp.ID, &bid.ID); err != nil {
			return err
		}
		if err := notifyOrg(ctx, tx, s.gateway, &out, bid.SellerOrgID,
			domain.NotificationHoldingCancelled, "Escrow cancelled", msg,
			&opp.ID, &bid.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Status = domain.HoldingStatusCancelled
		rec.CancelledAt = &now
		return nil
	})
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	s.afterCommit(ctx, out, domain.WorkflowEvent{
		Event:         "holding_cancelled",
		OpportunityID: rec.OpportunityID,
		BidID:         rec.BidID,
		RecordID:      rec.ID,
		Status:        string(rec.Status),
	})
	s.logger.InfoContext(ctx, "holding record cancelled",
		slog.String("record_id", rec.ID),
		slog.String("reason", reason),
	)
	return rec, nil
}

// GetRecord retrieves a holding record by ID.
func (s *HoldingService) GetRecord(ctx context.Context, id string) (domain.HoldingRecord, error) {
	rec, err := s.holdings.GetByID(ctx, id)
	if err != nil {
		return domain.HoldingRecord{}, fmt.Errorf("holding_service: get record %q: %w", id, err)
	}
	return rec, nil
}

// GetRecordByBid retrieves the holding record paired with a bid.
func (s *HoldingService) GetRecordByBid(ctx context.Context, bidID string) (domain.HoldingRecord, error) {
	rec, err := s.holdings.GetByBidID(ctx, bidID)
	if err != nil {
		return domain.HoldingRecord{}, fmt.Errorf("holding_service: get record for bid %q: %w", bidID, err)
	}
	return rec, nil
}

func (s *HoldingService) afterCommit(ctx context.Context, out []outbound, evt domain.WorkflowEvent) {
	publishEvent(ctx, s.bus, s.logger, evt)
	for _, o := range out {
		s.gateway.Dispatch(o.typ, o.title, o.message)
	}
}
