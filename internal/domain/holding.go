package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingStatus tracks escrowed funds from bid approval through release.
type HoldingStatus string

const (
	HoldingStatusPending          HoldingStatus = "pending"
	HoldingStatusInstructionsSent HoldingStatus = "instructions_sent"
	HoldingStatusPaymentInitiated HoldingStatus = "payment_initiated"
	HoldingStatusReceived         HoldingStatus = "received"
	HoldingStatusReleased         HoldingStatus = "released"
	HoldingStatusCancelled        HoldingStatus = "cancelled"
)

// holdingTransitions is the forward chain; cancelled is additionally
// reachable from every non-terminal state (see CanTransition).
var holdingTransitions = map[HoldingStatus][]HoldingStatus{
	HoldingStatusPending:          {HoldingStatusInstructionsSent},
	HoldingStatusInstructionsSent: {HoldingStatusPaymentInitiated, HoldingStatusReceived},
	HoldingStatusPaymentInitiated: {HoldingStatusReceived},
	HoldingStatusReceived:         {HoldingStatusReleased},
}

// CanTransition reports whether moving from s to next is legal. Any
// non-terminal state may move to cancelled; released and cancelled are
// terminal.
func (s HoldingStatus) CanTransition(next HoldingStatus) bool {
	if next == HoldingStatusCancelled {
		return !s.Terminal()
	}
	for _, allowed := range holdingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s HoldingStatus) Terminal() bool {
	return s == HoldingStatusReleased || s == HoldingStatusCancelled
}

// HoldingRecord is the custodial payment record escrowing funds for exactly
// one approved bid. All amounts and both fee percentages are computed once at
// creation from the bid's frozen snapshot and never recomputed on read.
type HoldingRecord struct {
	ID            string
	BidID         string
	OpportunityID string

	Amount       decimal.Decimal // the winning bid amount
	BuyerTotal   decimal.Decimal // amount plus buyer-side fee, owed by the buyer
	SellerNet    decimal.Decimal // amount minus seller-side fee, owed to the seller
	PlatformFee  decimal.Decimal
	BuyerFeePct  decimal.Decimal
	SellerFeePct decimal.Decimal

	Status HoldingStatus

	CreatedAt          time.Time
	UpdatedAt          time.Time
	InstructionsSentAt *time.Time
	PaymentInitiatedAt *time.Time
	ReceivedAt         *time.Time
	ReleasedAt         *time.Time
	CancelledAt        *time.Time
}
