package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeBreakdown is the immutable fee snapshot copied into a holding record at
// creation time. It is a value object: once computed, it is stored verbatim
// and never recomputed.
type FeeBreakdown struct {
	BuyerTotal   decimal.Decimal
	SellerNet    decimal.Decimal
	PlatformFee  decimal.Decimal
	BuyerFeePct  decimal.Decimal
	SellerFeePct decimal.Decimal
}

// CalculateFees derives the buyer total, seller net, and platform fee from a
// bid amount and the two fee percentages. Each side's fee is computed in
// unrounded decimal arithmetic and rounded exactly once to two places,
// half-up; the three derived values are then exact sums of rounded terms, so
// (buyerTotal - amount) + (amount - sellerNet) == platformFee to the cent.
func CalculateFees(amount, buyerPct, sellerPct decimal.Decimal) (FeeBreakdown, error) {
	if !amount.IsPositive() {
		return FeeBreakdown{}, fmt.Errorf("fees: amount must be positive, got %s: %w", amount, ErrInvalidInput)
	}
	if buyerPct.IsNegative() || sellerPct.IsNegative() {
		return FeeBreakdown{}, fmt.Errorf("fees: fee percentages must be non-negative: %w", ErrInvalidInput)
	}
	if sellerPct.GreaterThanOrEqual(hundred) {
		return FeeBreakdown{}, fmt.Errorf("fees: seller fee %s%% would exceed the bid amount: %w", sellerPct, ErrInvalidInput)
	}

	buyerFee := amount.Mul(buyerPct).Div(hundred).Round(2)
	sellerFee := amount.Mul(sellerPct).Div(hundred).Round(2)

	return FeeBreakdown{
		BuyerTotal:   amount.Add(buyerFee),
		SellerNet:    amount.Sub(sellerFee),
		PlatformFee:  buyerFee.Add(sellerFee),
		BuyerFeePct:  buyerPct,
		SellerFeePct: sellerPct,
	}, nil
}
