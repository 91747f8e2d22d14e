package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OpportunityStore persists opportunities (plain, untransacted reads/writes).
type OpportunityStore interface {
	Create(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	ListByStatus(ctx context.Context, status OpportunityStatus, opts ListOpts) ([]Opportunity, error)
	ListByBuyer(ctx context.Context, buyerOrgID string, opts ListOpts) ([]Opportunity, error)
}

// BidStore persists bids. Status mutations go through WorkflowTx so guard
// reads and writes share one locked view; this interface covers reads and
// sweeper scans.
type BidStore interface {
	GetByID(ctx context.Context, id string) (Bid, error)
	ListByOpportunity(ctx context.Context, opportunityID string, opts ListOpts) ([]Bid, error)
	ListBySeller(ctx context.Context, sellerOrgID string, opts ListOpts) ([]Bid, error)
	ListStale(ctx context.Context, status BidStatus, olderThan time.Time, limit int) ([]Bid, error)
}

// HoldingStore persists holding records (reads and sweeper scans only; see
// BidStore).
type HoldingStore interface {
	GetByID(ctx context.Context, id string) (HoldingRecord, error)
	GetByBidID(ctx context.Context, bidID string) (HoldingRecord, error)
	ListStale(ctx context.Context, statuses []HoldingStatus, olderThan time.Time, limit int) ([]HoldingRecord, error)
}

// NotificationStore reads the append-only notification log.
type NotificationStore interface {
	ListByRecipient(ctx context.Context, recipientID string, opts ListOpts) ([]Notification, error)
}

// OrgStore reads organizations, members, and API tokens.
type OrgStore interface {
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	GetToken(ctx context.Context, tokenID string) (APIToken, error)
}

// WorkflowTx is the consistent view inside one storage transaction. All
// ForUpdate reads take exclusive row locks held until commit or rollback, so
// a guard checked against a ForUpdate read cannot be invalidated by a
// concurrent writer before the transition lands.
//
// Lock ordering: callers touching both an opportunity and its bids must lock
// the opportunity row first.
type WorkflowTx interface {
	OpportunityForUpdate(ctx context.Context, id string) (Opportunity, error)
	BidForUpdate(ctx context.Context, id string) (Bid, error)
	// OpenBidsForUpdate locks and returns every bid on the opportunity still
	// in the open set (pending or under_review).
	OpenBidsForUpdate(ctx context.Context, opportunityID string) ([]Bid, error)
	HoldingForUpdate(ctx context.Context, id string) (HoldingRecord, error)

	CreateBid(ctx context.Context, bid Bid) error
	CreateHolding(ctx context.Context, rec HoldingRecord) error
	CreateNotifications(ctx context.Context, ns []Notification) error

	UpdateBidStatus(ctx context.Context, id string, status BidStatus, declineReason string) error
	UpdateOpportunityStatus(ctx context.Context, id string, status OpportunityStatus) error
	UpdateHoldingStatus(ctx context.Context, id string, status HoldingStatus) error

	// Members resolves notification recipients from the same transaction.
	Members(ctx context.Context, orgID string) ([]Member, error)
	// OperationsMembers returns the members of every operations/admin org.
	OperationsMembers(ctx context.Context) ([]Member, error)
}

// Transactor runs fn inside one all-or-nothing storage transaction. Any
// error from fn rolls back every write; nil commits them as a unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx WorkflowTx) error) error
}
