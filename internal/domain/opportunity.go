package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStatus tracks a buyer-posted engagement through its lifetime.
type OpportunityStatus string

const (
	OpportunityStatusDraft           OpportunityStatus = "draft"
	OpportunityStatusPendingApproval OpportunityStatus = "pending_approval"
	OpportunityStatusPublished       OpportunityStatus = "published"
	OpportunityStatusInProgress      OpportunityStatus = "in_progress"
	OpportunityStatusCompleted       OpportunityStatus = "completed"
	OpportunityStatusCancelled       OpportunityStatus = "cancelled"
)

// Opportunity is a paid engagement posted by a buyer organization, open to
// competitive seller bids. At most one of its bids may ever be active
// (approved or further along); the bid lifecycle machine enforces that.
type Opportunity struct {
	ID          string
	BuyerOrgID  string
	Title       string
	Description string
	PriceFloor  decimal.Decimal
	Status      OpportunityStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
