package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus tracks the seller-offer lifecycle.
type BidStatus string

const (
	BidStatusPending           BidStatus = "pending"
	BidStatusUnderReview       BidStatus = "under_review"
	BidStatusApproved          BidStatus = "approved"
	BidStatusLive              BidStatus = "live"
	BidStatusCompletionPending BidStatus = "completion_pending"
	BidStatusCompleted         BidStatus = "completed"
	BidStatusDeclined          BidStatus = "declined"
)

// bidTransitions is the full set of legal status moves. No skipping, no
// reversal; declined and completed are terminal.
var bidTransitions = map[BidStatus][]BidStatus{
	BidStatusPending:           {BidStatusUnderReview, BidStatusApproved, BidStatusDeclined},
	BidStatusUnderReview:       {BidStatusApproved, BidStatusDeclined},
	BidStatusApproved:          {BidStatusLive},
	BidStatusLive:              {BidStatusCompletionPending},
	BidStatusCompletionPending: {BidStatusCompleted},
}

// CanTransition reports whether moving from s to next is a legal direct step.
func (s BidStatus) CanTransition(next BidStatus) bool {
	for _, allowed := range bidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s BidStatus) Terminal() bool {
	return len(bidTransitions[s]) == 0
}

// Open reports whether the bid is still awaiting a buyer decision.
func (s BidStatus) Open() bool {
	return s == BidStatusPending || s == BidStatusUnderReview
}

// Active reports whether the bid has won its opportunity: approved or any
// later non-declined status. At most one bid per opportunity may be active.
func (s BidStatus) Active() bool {
	switch s {
	case BidStatusApproved, BidStatusLive, BidStatusCompletionPending, BidStatusCompleted:
		return true
	}
	return false
}

// Decline reasons recorded when a bid leaves the open set without winning.
const (
	DeclineReasonOutcompeted = "another bid was approved for this opportunity"
	DeclineReasonWithdrawn   = "withdrawn by seller"
)

// Bid is a seller organization's offer against one opportunity, unique per
// (opportunity, seller). The two fee percentages are snapshotted from the
// platform fee schedule at submission time and frozen thereafter, so later
// schedule changes never reprice historical bids. Status moves only through
// the bid lifecycle machine.
type Bid struct {
	ID            string
	OpportunityID string
	SellerOrgID   string
	Amount        decimal.Decimal
	Proposal      string
	Status        BidStatus
	BuyerFeePct   decimal.Decimal
	SellerFeePct  decimal.Decimal
	DeclineReason string

	CreatedAt             time.Time
	UpdatedAt             time.Time
	ApprovedAt            *time.Time
	LiveAt                *time.Time
	CompletionRequestedAt *time.Time
	CompletedAt           *time.Time
	DeclinedAt            *time.Time
}
