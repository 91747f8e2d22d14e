package handler

import (
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// Wire representations. Monetary amounts travel as fixed two-decimal strings
// so clients never round-trip them through binary floats.

type opportunityResponse struct {
	ID          string     `json:"id"`
	BuyerOrgID  string     `json:"buyer_org_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PriceFloor  string     `json:"price_floor"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toOpportunityResponse(o domain.Opportunity) opportunityResponse {
	return opportunityResponse{
		ID:          o.ID,
		BuyerOrgID:  o.BuyerOrgID,
		Title:       o.Title,
		Description: o.Description,
		PriceFloor:  o.PriceFloor.StringFixed(2),
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
}

func toOpportunityResponses(opps []domain.Opportunity) []opportunityResponse {
	out := make([]opportunityResponse, 0, len(opps))
	for _, o := range opps {
		out = append(out, toOpportunityResponse(o))
	}
	return out
}

type bidResponse struct {
	ID            string     `json:"id"`
	OpportunityID string     `json:"opportunity_id"`
	SellerOrgID   string     `json:"seller_org_id"`
	Amount        string     `json:"amount"`
	Proposal      string     `json:"proposal,omitempty"`
	Status        string     `json:"status"`
	BuyerFeePct   string     `json:"buyer_fee_pct"`
	SellerFeePct  string     `json:"seller_fee_pct"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	LiveAt        *time.Time `json:"live_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`
}

func toBidResponse(b domain.Bid) bidResponse {
	return bidResponse{
		ID:            b.ID,
		OpportunityID: b.OpportunityID,
		SellerOrgID:   b.SellerOrgID,
		Amount:        b.Amount.StringFixed(2),
		Proposal:      b.Proposal,
		Status:        string(b.Status),
		BuyerFeePct:   b.BuyerFeePct.String(),
		SellerFeePct:  b.SellerFeePct.String(),
		DeclineReason: b.DeclineReason,
		CreatedAt:     b.CreatedAt,
		ApprovedAt:    b.ApprovedAt,
		LiveAt:        b.LiveAt,
		CompletedAt:   b.CompletedAt,
		DeclinedAt:    b.DeclinedAt,
	}
}

func toBidResponses(bids []domain.Bid) []bidResponse {
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	return out
}

type holdingResponse struct {
	ID            string     `json:"id"`
	BidID         string     `json:"bid_id"`
	OpportunityID string     `json:"opportunity_id"`
	Amount        string     `json:"amount"`
	BuyerTotal    string     `json:"buyer_total"`
	SellerNet     string     `json:"seller_net"`
	PlatformFee   string     `json:"platform_fee"`
	BuyerFeePct   string     `json:"buyer_fee_pct"`
	SellerFeePct  string     `json:"seller_fee_pct"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ReceivedAt    *time.Time `json:"received_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toHoldingResponse(rec domain.HoldingRecord) holdingResponse {
	return holdingResponse{
		ID:            rec.ID,
		BidID:         rec.BidID,
		OpportunityID: rec.OpportunityID,
		Amount:        rec.Amount.StringFixed(2),
		BuyerTotal:    rec.BuyerTotal.StringFixed(2),
		SellerNet:     rec.SellerNet.StringFixed(2),
		PlatformFee:   rec.PlatformFee.StringFixed(2),
		BuyerFeePct:   rec.BuyerFeePct.String(),
		SellerFeePct:  rec.SellerFeePct.String(),
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
		ReceivedAt:    rec.ReceivedAt,
		ReleasedAt:    rec.ReleasedAt,
		CancelledAt:   rec.CancelledAt,
	}
}

type notificationResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	OpportunityID *string   `json:"opportunity_id,omitempty"`
	BidID         *string   `json:"bid_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toNotificationResponses(ns []domain.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationResponse{
			ID:            n.ID,
			Type:          string(n.Type),
			Title:         n.Title,
			Message:       n.Message,
			OpportunityID: n.OpportunityID,
			BidID:         n.BidID,
			CreatedAt:     n.CreatedAt,
		})
	}
	return out
}
