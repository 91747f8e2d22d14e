package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// bidSelectCols lists the columns selected when reading bids. Monetary
// columns are cast to text and parsed into decimals on scan.
const bidSelectCols = `id, opportunity_id, seller_org_id, amount::TEXT,
	proposal, status, buyer_fee_pct::TEXT, seller_fee_pct::TEXT, decline_reason,
	created_at, updated_at, approved_at, live_at,
	completion_requested_at, completed_at, declined_at`

func scanBidFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Bid, error) {
	var b domain.Bid
	var status, amount, buyerPct, sellerPct string

	err := scanner.Scan(
		&b.ID, &b.OpportunityID, &b.SellerOrgID, &amount,
		&b.Proposal, &status, &buyerPct, &sellerPct, &b.DeclineReason,
		&b.CreatedAt, &b.UpdatedAt, &b.ApprovedAt, &b.LiveAt,
		&b.CompletionRequestedAt, &b.CompletedAt, &b.DeclinedAt,
	)
	if err != nil {
		return domain.Bid{}, err
	}

	b.Status = domain.BidStatus(status)
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Bid{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if b.BuyerFeePct, err = decimal.NewFromString(buyerPct); err != nil {
		return domain.Bid{}, fmt.Errorf("parse buyer_fee_pct %q: %w", buyerPct, err)
	}
	if b.SellerFeePct, err = decimal.NewFromString(sellerPct); err != nil {
		return domain.Bid{}, fmt.Errorf("parse seller_fee_pct %q: %w", sellerPct, err)
	}
	return b, nil
}

func scanBidRows(rows pgx.Rows) ([]domain.Bid, error) {
	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBidFromRow(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// GetByID retrieves a single bid by ID.
func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE id = $1`, id)

	b, err := scanBidFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: get bid %s: %w", id, err)
	}
	return b, nil
}

// ListByOpportunity returns bids on the given opportunity, newest first.
func (s *BidStore) ListByOpportunity(ctx context.Context, opportunityID string, opts domain.ListOpts) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE opportunity_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		opportunityID, listLimit(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids by opportunity: %w", err)
	}
	defer rows.Close()

	bids, err := scanBidRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bids by opportunity: %w", err)
	}
	return bids, nil
}

// ListBySeller returns bids owned by the given seller org, newest first.
func (s *BidStore) ListBySeller(ctx context.Context, sellerOrgID string, opts domain.ListOpts) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE seller_org_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		sellerOrgID, listLimit(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids by seller: %w", err)
	}
	defer rows.Close()

	bids, err := scanBidRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bids by seller: %w", err)
	}
	return bids, nil
}

// ListStale returns bids sitting in the given status since before olderThan,
// oldest first. Used by the sweeper.
func (s *BidStore) ListStale(ctx context.Context, status domain.BidStatus, olderThan time.Time, limit int) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		string(status), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale bids: %w", err)
	}
	defer rows.Close()

	bids, err := scanBidRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stale bids: %w", err)
	}
	return bids, nil
}

// listLimit applies the default and ceiling for list queries.
func listLimit(opts domain.ListOpts) int {
	if opts.Limit <= 0 {
		return 50
	}
	if opts.Limit > 500 {
		return 500
	}
	return opts.Limit
}

// Compile-time interface check.
var _ domain.BidStore = (*BidStore)(nil)
