package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

func TestSendInstructions(t *testing.T) {
	ctx := context.Background()

	t.Run("moves pending to instructions_sent and notifies buyer", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusPending, 10000)
		svc := newHoldingService(db)

		rec, err := svc.SendInstructions(ctx, "rec-1")
		if err != nil {
			t.Fatalf("SendInstructions: %v", err)
		}
		if rec.Status != domain.HoldingStatusInstructionsSent {
			t.Errorf("status = %s, want instructions_sent", rec.Status)
		}
		if len(s.notifications) != 1 {
			t.Fatalf("notifications = %d, want 1", len(s.notifications))
		}
		n := s.notifications[0]
		if n.RecipientID != "mem-buyer" || n.Type != domain.NotificationPaymentInstructions {
			t.Errorf("notification = %+v, want payment_instructions to buyer", n)
		}
	})

	t.Run("cannot send twice", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
		svc := newHoldingService(db)

		if _, err := svc.SendInstructions(ctx, "rec-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})
}

func TestMarkPaymentInitiated(t *testing.T) {
	ctx := context.Background()
	s, db := newTestEnv()
	seedOpportunity(s, domain.OpportunityStatusInProgress)
	seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
	seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusPending, 10000)
	svc := newHoldingService(db)

	// Instructions have to go out first.
	if _, err := svc.MarkPaymentInitiated(ctx, "rec-1"); !errors.Is(err, domain.ErrGuardFailed) {
		t.Fatalf("err = %v, want ErrGuardFailed from pending", err)
	}

	s.holdings["rec-1"] = withHoldingStatus(s.holdings["rec-1"], domain.HoldingStatusInstructionsSent)
	rec, err := svc.MarkPaymentInitiated(ctx, "rec-1")
	if err != nil {
		t.Fatalf("MarkPaymentInitiated: %v", err)
	}
	if rec.Status != domain.HoldingStatusPaymentInitiated {
		t.Errorf("status = %s, want payment_initiated", rec.Status)
	}
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("activates the bid in the same commit", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
		svc := newHoldingService(db)

		rec, err := svc.ConfirmPayment(ctx, "rec-1")
		if err != nil {
			t.Fatalf("ConfirmPayment: %v", err)
		}
		if rec.Status != domain.HoldingStatusReceived {
			t.Errorf("record status = %s, want received", rec.Status)
		}
		if got := s.bids["bid-1"].Status; got != domain.BidStatusLive {
			t.Errorf("bid status = %s, want live", got)
		}

		recipients := map[string]domain.NotificationType{}
		for _, n := range s.notifications {
			recipients[n.RecipientID] = n.Type
		}
		if recipients["mem-seller"] != domain.NotificationWorkAuthorized {
			t.Errorf("seller notification = %s, want work_authorized", recipients["mem-seller"])
		}
		if recipients["mem-buyer"] != domain.NotificationPaymentReceived {
			t.Errorf("buyer notification = %s, want payment_received", recipients["mem-buyer"])
		}
	})

	t.Run("works from payment_initiated too", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusPaymentInitiated, 10000)
		svc := newHoldingService(db)

		rec, err := svc.ConfirmPayment(ctx, "rec-1")
		if err != nil {
			t.Fatalf("ConfirmPayment: %v", err)
		}
		if rec.Status != domain.HoldingStatusReceived {
			t.Errorf("status = %s, want received", rec.Status)
		}
	})

	t.Run("refuses before instructions go out", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusPending, 10000)
		svc := newHoldingService(db)

		if _, err := svc.ConfirmPayment(ctx, "rec-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})

	t.Run("refuses when the bid is not approved", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusLive, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
		svc := newHoldingService(db)

		if _, err := svc.ConfirmPayment(ctx, "rec-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
		// Nothing moved.
		if got := s.holdings["rec-1"].Status; got != domain.HoldingStatusInstructionsSent {
			t.Errorf("record status = %s, want instructions_sent", got)
		}
	})

	t.Run("bid activation rolls back when the record write fails", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
		db.failUpdateHolding = true
		svc := newHoldingService(db)

		if _, err := svc.ConfirmPayment(ctx, "rec-1"); err == nil {
			t.Fatal("ConfirmPayment succeeded despite storage failure")
		}
		// The record could not move, so the bid must not have either.
		if got := s.bids["bid-1"].Status; got != domain.BidStatusApproved {
			t.Errorf("bid status = %s, want approved after rollback", got)
		}
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("pays out once funds are held and work is verified", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusCompleted)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusCompleted, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusReceived, 10000)
		svc := newHoldingService(db)

		rec, err := svc.Release(ctx, "rec-1")
		if err != nil {
			t.Fatalf("Release: %v", err)
		}
		if rec.Status != domain.HoldingStatusReleased {
			t.Errorf("status = %s, want released", rec.Status)
		}
		if len(s.notifications) != 1 || s.notifications[0].Type != domain.NotificationPaymentReleased {
			t.Errorf("expected one payment_released notification, got %+v", s.notifications)
		}
	})

	t.Run("refuses while work is unverified", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusLive, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusReceived, 10000)
		svc := newHoldingService(db)

		_, err := svc.Release(ctx, "rec-1")
		if !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
		var guard *domain.GuardError
		if !errors.As(err, &guard) || guard.Entity != "bid" {
			t.Errorf("guard = %+v, want the bid named as the blocker", guard)
		}
		if got := s.holdings["rec-1"].Status; got != domain.HoldingStatusReceived {
			t.Errorf("record status = %s, want received", got)
		}
	})

	t.Run("refuses before funds are received", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusCompleted)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusCompleted, 10000)
		seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
		svc := newHoldingService(db)

		if _, err := svc.Release(ctx, "rec-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})
}

func TestCancelHolding(t *testing.T) {
	ctx := context.Background()

	nonTerminal := []domain.HoldingStatus{
		domain.HoldingStatusPending,
		domain.HoldingStatusInstructionsSent,
		domain.HoldingStatusPaymentInitiated,
		domain.HoldingStatusReceived,
	}
	for _, status := range nonTerminal {
		t.Run("cancels from "+string(status), func(t *testing.T) {
			s, db := newTestEnv()
			seedOpportunity(s, domain.OpportunityStatusInProgress)
			seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
			seedHolding(s, "rec-1", "bid-1", status, 10000)
			svc := newHoldingService(db)

			rec, err := svc.Cancel(ctx, "rec-1", "engagement terminated")
			if err != nil {
				t.Fatalf("Cancel from %s: %v", status, err)
			}
			if rec.Status != domain.HoldingStatusCancelled {
				t.Errorf("status = %s, want cancelled", rec.Status)
			}
			// Both parties hear about it.
			if len(s.notifications) != 2 {
				t.Errorf("notifications = %d, want 2", len(s.notifications))
			}
		})
	}

	for _, status := range []domain.HoldingStatus{domain.HoldingStatusReleased, domain.HoldingStatusCancelled} {
		t.Run("refuses from "+string(status), func(t *testing.T) {
			s, db := newTestEnv()
			seedOpportunity(s, domain.OpportunityStatusInProgress)
			seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
			seedHolding(s, "rec-1", "bid-1", status, 10000)
			svc := newHoldingService(db)

			if _, err := svc.Cancel(ctx, "rec-1", ""); !errors.Is(err, domain.ErrGuardFailed) {
				t.Fatalf("err = %v, want ErrGuardFailed", err)
			}
		})
	}
}

func withHoldingStatus(rec domain.HoldingRecord, status domain.HoldingStatus) domain.HoldingRecord {
	rec.Status = status
	return rec
}
