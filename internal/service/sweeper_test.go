package service

import (
	"context"
	"testing"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

type fakeLocks struct {
	held     bool
	acquired int
}

func (f *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() {}, nil
}

func newSweeper(db *memDB, locks *fakeLocks) *Sweeper {
	return NewSweeper(db, db.s, holdingStore{db.s}, oppStore{db.s}, locks, testGateway(),
		SweeperConfig{Interval: time.Hour, StaleAfter: 24 * time.Hour, BatchSize: 10},
		testLogger())
}

func TestSweeperReminders(t *testing.T) {
	ctx := context.Background()
	s, db := newTestEnv()
	seedOpportunity(s, domain.OpportunityStatusInProgress)

	stale := time.Now().UTC().Add(-48 * time.Hour)

	// A completion claim the buyer has sat on.
	bid := seedBid(s, "bid-1", sellerOrg, domain.BidStatusCompletionPending, 10000)
	bid.UpdatedAt = stale
	s.bids[bid.ID] = bid

	// An escrow record operations never issued instructions for.
	rec := seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusPending, 10000)
	rec.UpdatedAt = stale
	s.holdings[rec.ID] = rec

	// A fresh record that must not trigger anything.
	seedBid(s, "bid-2", rivalOrg, domain.BidStatusCompletionPending, 9000)

	sw := newSweeper(db, &fakeLocks{})
	reminded, err := sw.sweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}
	if reminded != 2 {
		t.Fatalf("reminded = %d, want 2", reminded)
	}

	byRecipient := map[string]int{}
	for _, n := range s.notifications {
		if n.Type != domain.NotificationSweepReminder {
			t.Errorf("notification type = %s, want sweep_reminder", n.Type)
		}
		byRecipient[n.RecipientID]++
	}
	if byRecipient["mem-buyer"] != 1 {
		t.Errorf("buyer reminders = %d, want 1 (stalled verification)", byRecipient["mem-buyer"])
	}
	if byRecipient["mem-ops"] != 1 {
		t.Errorf("ops reminders = %d, want 1 (instructions overdue)", byRecipient["mem-ops"])
	}

	// No transitions: the sweeper only nudges.
	if got := s.bids["bid-1"].Status; got != domain.BidStatusCompletionPending {
		t.Errorf("bid status = %s, want completion_pending untouched", got)
	}
	if got := s.holdings["rec-1"].Status; got != domain.HoldingStatusPending {
		t.Errorf("record status = %s, want pending untouched", got)
	}
}

func TestSweeperRemindsBuyerOfUnpaidInstructions(t *testing.T) {
	ctx := context.Background()
	s, db := newTestEnv()
	seedOpportunity(s, domain.OpportunityStatusInProgress)
	seedBid(s, "bid-1", sellerOrg, domain.BidStatusApproved, 10000)
	rec := seedHolding(s, "rec-1", "bid-1", domain.HoldingStatusInstructionsSent, 10000)
	rec.UpdatedAt = time.Now().UTC().Add(-72 * time.Hour)
	s.holdings[rec.ID] = rec

	sw := newSweeper(db, &fakeLocks{})
	if _, err := sw.sweepOnce(ctx); err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}

	if len(s.notifications) != 1 || s.notifications[0].RecipientID != "mem-buyer" {
		t.Fatalf("expected one buyer reminder, got %+v", s.notifications)
	}
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	s, db := newTestEnv()
	seedOpportunity(s, domain.OpportunityStatusInProgress)
	bid := seedBid(s, "bid-1", sellerOrg, domain.BidStatusCompletionPending, 10000)
	bid.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	s.bids[bid.ID] = bid

	sw := newSweeper(db, &fakeLocks{held: true})
	sw.sweep(ctx)

	if len(s.notifications) != 0 {
		t.Fatalf("notifications = %d, want 0 while another instance holds the lock", len(s.notifications))
	}
}
