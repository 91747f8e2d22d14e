package domain

import "testing"

func TestBidStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to BidStatus }{
		{BidStatusPending, BidStatusUnderReview},
		{BidStatusPending, BidStatusApproved},
		{BidStatusPending, BidStatusDeclined},
		{BidStatusUnderReview, BidStatusApproved},
		{BidStatusUnderReview, BidStatusDeclined},
		{BidStatusApproved, BidStatusLive},
		{BidStatusLive, BidStatusCompletionPending},
		{BidStatusCompletionPending, BidStatusCompleted},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransition(tt.to) {
			t.Errorf("%s -> %s should be allowed", tt.from, tt.to)
		}
	}

	forbidden := []struct{ from, to BidStatus }{
		{BidStatusPending, BidStatusLive},              // no skipping
		{BidStatusApproved, BidStatusCompleted},        // no skipping
		{BidStatusApproved, BidStatusDeclined},         // decisions are final
		{BidStatusLive, BidStatusApproved},             // no reversal
		{BidStatusCompleted, BidStatusCompletionPending},
		{BidStatusDeclined, BidStatusPending},
		{BidStatusDeclined, BidStatusApproved},
		{BidStatusCompleted, BidStatusLive},
	}
	for _, tt := range forbidden {
		if tt.from.CanTransition(tt.to) {
			t.Errorf("%s -> %s should be forbidden", tt.from, tt.to)
		}
	}
}

func TestBidStatusPredicates(t *testing.T) {
	if !BidStatusDeclined.Terminal() || !BidStatusCompleted.Terminal() {
		t.Error("declined and completed must be terminal")
	}
	if BidStatusLive.Terminal() {
		t.Error("live is not terminal")
	}

	for _, s := range []BidStatus{BidStatusPending, BidStatusUnderReview} {
		if !s.Open() {
			t.Errorf("%s should be open", s)
		}
	}
	for _, s := range []BidStatus{BidStatusApproved, BidStatusLive, BidStatusCompleted, BidStatusDeclined} {
		if s.Open() {
			t.Errorf("%s should not be open", s)
		}
	}

	for _, s := range []BidStatus{BidStatusApproved, BidStatusLive, BidStatusCompletionPending, BidStatusCompleted} {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []BidStatus{BidStatusPending, BidStatusUnderReview, BidStatusDeclined} {
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
	}
}
