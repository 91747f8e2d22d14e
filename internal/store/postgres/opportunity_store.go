package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, buyer_org_id, title, description,
	price_floor::TEXT, status, created_at, updated_at`

func scanOpportunityFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Opportunity, error) {
	var o domain.Opportunity
	var status, priceFloor string

	err := scanner.Scan(
		&o.ID, &o.BuyerOrgID, &o.Title, &o.Description,
		&priceFloor, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}

	o.Status = domain.OpportunityStatus(status)
	if o.PriceFloor, err = decimal.NewFromString(priceFloor); err != nil {
		return domain.Opportunity{}, fmt.Errorf("parse price_floor %q: %w", priceFloor, err)
	}
	return o, nil
}

func scanOpportunityRows(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunityFromRow(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// Create inserts a new opportunity.
func (s *OpportunityStore) Create(ctx context.Context, o domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, buyer_org_id, title, description, price_floor, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.BuyerOrgID, o.Title, o.Description,
		o.PriceFloor.String(), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create opportunity %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single opportunity by ID.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities WHERE id = $1`, id)

	o, err := scanOpportunityFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// UpdateStatus changes the status of an existing opportunity.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update opportunity status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns opportunities in the given status, newest first.
func (s *OpportunityStore) ListByStatus(ctx context.Context, status domain.OpportunityStatus, opts domain.ListOpts) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		string(status), listLimit(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities by status: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities by status: %w", err)
	}
	return opps, nil
}

// ListByBuyer returns opportunities posted by the given buyer org.
func (s *OpportunityStore) ListByBuyer(ctx context.Context, buyerOrgID string, opts domain.ListOpts) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities
		 WHERE buyer_org_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		buyerOrgID, listLimit(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities by buyer: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities by buyer: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
