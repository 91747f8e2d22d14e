package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

func TestSubmitBid(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending bid with fee snapshot", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		svc := newBidService(db)

		bid, err := svc.Submit(ctx, sellerOrg, "opp-1", decimal.NewFromInt(5000), "we can do this")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if bid.Status != domain.BidStatusPending {
			t.Errorf("status = %s, want pending", bid.Status)
		}
		if !bid.BuyerFeePct.Equal(testFees.BuyerPct) || !bid.SellerFeePct.Equal(testFees.SellerPct) {
			t.Errorf("fee snapshot = %s/%s, want %s/%s", bid.BuyerFeePct, bid.SellerFeePct, testFees.BuyerPct, testFees.SellerPct)
		}
		if got := len(s.notifications); got != 1 {
			t.Fatalf("notifications = %d, want 1 (buyer member)", got)
		}
		if s.notifications[0].RecipientID != "mem-buyer" || s.notifications[0].Type != domain.NotificationBidSubmitted {
			t.Errorf("notification = %+v, want bid_submitted to mem-buyer", s.notifications[0])
		}
	})

	t.Run("rejects amount below price floor", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		svc := newBidService(db)

		_, err := svc.Submit(ctx, sellerOrg, "opp-1", decimal.NewFromInt(999), "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
		if len(s.bids) != 0 {
			t.Errorf("bid persisted despite rejection")
		}
	})

	t.Run("rejects unpublished opportunity", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusDraft)
		svc := newBidService(db)

		_, err := svc.Submit(ctx, sellerOrg, "opp-1", decimal.NewFromInt(5000), "")
		if !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})

	t.Run("rejects second bid from same seller", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 5000)
		svc := newBidService(db)

		_, err := svc.Submit(ctx, sellerOrg, "opp-1", decimal.NewFromInt(6000), "")
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})
}

func TestApproveBid(t *testing.T) {
	ctx := context.Background()

	t.Run("approves winner, declines rivals, opens escrow", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 10000)
		seedBid(s, "bid-2", rivalOrg, domain.BidStatusUnderReview, 12000)
		svc := newBidService(db)

		bid, err := svc.Approve(ctx, "bid-1")
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if bid.Status != domain.BidStatusApproved {
			t.Errorf("winner status = %s, want approved", bid.Status)
		}

		rival := s.bids["bid-2"]
		if rival.Status != domain.BidStatusDeclined {
			t.Errorf("rival status = %s, want declined", rival.Status)
		}
		if rival.DeclineReason != domain.DeclineReasonOutcompeted {
			t.Errorf("rival decline reason = %q, want %q", rival.DeclineReason, domain.DeclineReasonOutcompeted)
		}

		if got := s.opps["opp-1"].Status; got != domain.OpportunityStatusInProgress {
			t.Errorf("opportunity status = %s, want in_progress", got)
		}

		var rec domain.HoldingRecord
		for _, r := range s.holdings {
			rec = r
		}
		if len(s.holdings) != 1 {
			t.Fatalf("holdings = %d, want exactly 1", len(s.holdings))
		}
		if rec.BidID != "bid-1" || rec.Status != domain.HoldingStatusPending {
			t.Errorf("holding = %+v, want pending record for bid-1", rec)
		}
		// 10000 at 5%/5%: buyer owes 10500, seller nets 9500, platform keeps 1000.
		if got := rec.BuyerTotal.StringFixed(2); got != "10500.00" {
			t.Errorf("BuyerTotal = %s, want 10500.00", got)
		}
		if got := rec.SellerNet.StringFixed(2); got != "9500.00" {
			t.Errorf("SellerNet = %s, want 9500.00", got)
		}
		if got := rec.PlatformFee.StringFixed(2); got != "1000.00" {
			t.Errorf("PlatformFee = %s, want 1000.00", got)
		}

		// One row each for the rival seller, the winner, and operations.
		recipients := map[string]domain.NotificationType{}
		for _, n := range s.notifications {
			recipients[n.RecipientID] = n.Type
		}
		if recipients["mem-rival"] != domain.NotificationBidDeclined {
			t.Errorf("rival notification = %s, want bid_declined", recipients["mem-rival"])
		}
		if recipients["mem-seller"] != domain.NotificationBidApproved {
			t.Errorf("winner notification = %s, want bid_approved", recipients["mem-seller"])
		}
		if recipients["mem-ops"] != domain.NotificationBidApproved {
			t.Errorf("ops notification = %s, want bid_approved", recipients["mem-ops"])
		}
	})

	t.Run("second approval is rejected without side effects", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 10000)
		svc := newBidService(db)

		if _, err := svc.Approve(ctx, "bid-1"); err != nil {
			t.Fatalf("first Approve: %v", err)
		}
		holdings, rows := len(s.holdings), len(s.notifications)

		_, err := svc.Approve(ctx, "bid-1")
		if !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("second Approve err = %v, want ErrGuardFailed", err)
		}
		var guard *domain.GuardError
		if !errors.As(err, &guard) || guard.Status != string(domain.BidStatusApproved) {
			t.Errorf("guard = %+v, want observed status approved", guard)
		}
		if len(s.holdings) != holdings || len(s.notifications) != rows {
			t.Errorf("repeat approval mutated state: holdings %d->%d, notifications %d->%d",
				holdings, len(s.holdings), rows, len(s.notifications))
		}
	})

	t.Run("rolls back everything when escrow creation fails", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 10000)
		seedBid(s, "bid-2", rivalOrg, domain.BidStatusPending, 12000)
		db.failCreateHolding = true
		svc := newBidService(db)

		if _, err := svc.Approve(ctx, "bid-1"); err == nil {
			t.Fatal("Approve succeeded despite storage failure")
		}
		if got := s.bids["bid-1"].Status; got != domain.BidStatusPending {
			t.Errorf("winner status = %s, want pending after rollback", got)
		}
		if got := s.bids["bid-2"].Status; got != domain.BidStatusPending {
			t.Errorf("rival status = %s, want pending after rollback", got)
		}
		if got := s.opps["opp-1"].Status; got != domain.OpportunityStatusPublished {
			t.Errorf("opportunity status = %s, want published after rollback", got)
		}
		if len(s.notifications) != 0 {
			t.Errorf("notifications = %d, want 0 after rollback", len(s.notifications))
		}
	})

	t.Run("declined bid cannot be approved", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusDeclined, 10000)
		svc := newBidService(db)

		if _, err := svc.Approve(ctx, "bid-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})
}

func TestDeclineAndWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("decline records reason and notifies seller", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusUnderReview, 5000)
		svc := newBidService(db)

		bid, err := svc.Decline(ctx, "bid-1", "budget withdrawn")
		if err != nil {
			t.Fatalf("Decline: %v", err)
		}
		if bid.Status != domain.BidStatusDeclined || bid.DeclineReason != "budget withdrawn" {
			t.Errorf("bid = %s/%q, want declined with reason", bid.Status, bid.DeclineReason)
		}
		if len(s.notifications) != 1 || s.notifications[0].RecipientID != "mem-seller" {
			t.Errorf("expected one notification to the seller, got %+v", s.notifications)
		}
	})

	t.Run("decline is terminal", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusDeclined, 5000)
		svc := newBidService(db)

		if _, err := svc.Decline(ctx, "bid-1", "again"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})

	t.Run("withdraw declines with withdrawal reason", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusPublished)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 5000)
		svc := newBidService(db)

		bid, err := svc.Withdraw(ctx, "bid-1")
		if err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if bid.DeclineReason != domain.DeclineReasonWithdrawn {
			t.Errorf("reason = %q, want %q", bid.DeclineReason, domain.DeclineReasonWithdrawn)
		}
	})

	t.Run("approved bid cannot be withdrawn", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 5000)
		svc := newBidService(db)

		if _, err := svc.Withdraw(ctx, "bid-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed", err)
		}
	})
}

func TestMarkUnderReview(t *testing.T) {
	ctx := context.Background()
	s, db := newTestEnv()
	seedOpportunity(s, domain.OpportunityStatusPublished)
	seedBid(s, "bid-1", sellerOrg, domain.BidStatusPending, 5000)
	svc := newBidService(db)

	bid, err := svc.MarkUnderReview(ctx, "bid-1")
	if err != nil {
		t.Fatalf("MarkUnderReview: %v", err)
	}
	if bid.Status != domain.BidStatusUnderReview {
		t.Errorf("status = %s, want under_review", bid.Status)
	}

	// Not repeatable.
	if _, err := svc.MarkUnderReview(ctx, "bid-1"); !errors.Is(err, domain.ErrGuardFailed) {
		t.Fatalf("repeat err = %v, want ErrGuardFailed", err)
	}
}

func TestCompletionFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("request requires live bid", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 5000)
		svc := newBidService(db)

		if _, err := svc.RequestCompletion(ctx, "bid-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed for approved bid", err)
		}
	})

	t.Run("request then verify closes the opportunity", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusLive, 5000)
		svc := newBidService(db)

		bid, err := svc.RequestCompletion(ctx, "bid-1")
		if err != nil {
			t.Fatalf("RequestCompletion: %v", err)
		}
		if bid.Status != domain.BidStatusCompletionPending {
			t.Errorf("status = %s, want completion_pending", bid.Status)
		}

		bid, err = svc.VerifyCompletion(ctx, "bid-1")
		if err != nil {
			t.Fatalf("VerifyCompletion: %v", err)
		}
		if bid.Status != domain.BidStatusCompleted {
			t.Errorf("status = %s, want completed", bid.Status)
		}
		if got := s.opps["opp-1"].Status; got != domain.OpportunityStatusCompleted {
			t.Errorf("opportunity status = %s, want completed", got)
		}

		// Operations hears the record is releasable.
		var sawRelease bool
		for _, n := range s.notifications {
			if n.RecipientID == "mem-ops" && n.Type == domain.NotificationReleaseReady {
				sawRelease = true
			}
		}
		if !sawRelease {
			t.Error("no release_ready notification reached operations")
		}
	})

	t.Run("verify requires a pending completion claim", func(t *testing.T) {
		s, db := newTestEnv()
		seedOpportunity(s, domain.OpportunityStatusInProgress)
		seedBid(s, "bid-1", sellerOrg, domain.BidStatusLive, 5000)
		svc := newBidService(db)

		if _, err := svc.VerifyCompletion(ctx, "bid-1"); !errors.Is(err, domain.ErrGuardFailed) {
			t.Fatalf("err = %v, want ErrGuardFailed for live bid", err)
		}
	})
}
