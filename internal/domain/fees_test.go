package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateFees(t *testing.T) {
	tests := []struct {
		name                string
		amount, buyer, sell string
		buyerTotal          string
		sellerNet           string
		platformFee         string
	}{
		{"round numbers", "10000", "5", "5", "10500.00", "9500.00", "1000.00"},
		{"asymmetric percentages", "10000", "3", "7", "10300.00", "9300.00", "1000.00"},
		{"zero fees pass through", "2500", "0", "0", "2500.00", "2500.00", "0.00"},
		{"fractional cents", "333.33", "2.5", "2.5", "341.66", "325.00", "16.66"},
		{"half cent rounds up", "2", "0.25", "0", "2.01", "2.00", "0.01"},
		{"tiny amount", "0.01", "5", "5", "0.01", "0.01", "0.00"},
		{"repeating division", "100", "3.333", "3.333", "103.33", "96.67", "6.66"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, err := CalculateFees(dec(tt.amount), dec(tt.buyer), dec(tt.sell))
			if err != nil {
				t.Fatalf("CalculateFees: %v", err)
			}
			if got := fb.BuyerTotal.StringFixed(2); got != tt.buyerTotal {
				t.Errorf("BuyerTotal = %s, want %s", got, tt.buyerTotal)
			}
			if got := fb.SellerNet.StringFixed(2); got != tt.sellerNet {
				t.Errorf("SellerNet = %s, want %s", got, tt.sellerNet)
			}
			if got := fb.PlatformFee.StringFixed(2); got != tt.platformFee {
				t.Errorf("PlatformFee = %s, want %s", got, tt.platformFee)
			}

			// The three derived values always reconcile to the cent.
			amount := dec(tt.amount)
			identity := fb.BuyerTotal.Sub(amount).Add(amount.Sub(fb.SellerNet))
			if !identity.Equal(fb.PlatformFee) {
				t.Errorf("fee identity broken: (buyerTotal-amount)+(amount-sellerNet) = %s, platformFee = %s",
					identity, fb.PlatformFee)
			}
		})
	}
}

func TestCalculateFeesRejects(t *testing.T) {
	tests := []struct {
		name                string
		amount, buyer, sell string
	}{
		{"zero amount", "0", "5", "5"},
		{"negative amount", "-100", "5", "5"},
		{"negative buyer pct", "100", "-1", "5"},
		{"negative seller pct", "100", "5", "-1"},
		{"seller pct at 100", "100", "5", "100"},
		{"seller pct above 100", "100", "5", "150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CalculateFees(dec(tt.amount), dec(tt.buyer), dec(tt.sell)); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}
