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

// HoldingStore implements domain.HoldingStore using PostgreSQL.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a new HoldingStore backed by the given pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

const holdingSelectCols = `id, bid_id, opportunity_id,
	amount::TEXT, buyer_total::TEXT, seller_net::TEXT, platform_fee::TEXT,
	buyer_fee_pct::TEXT, seller_fee_pct::TEXT, status,
	created_at, updated_at, instructions_sent_at, payment_initiated_at,
	received_at, released_at, cancelled_at`

func scanHoldingFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.HoldingRecord, error) {
	var rec domain.HoldingRecord
	var status string
	raw := make([]string, 6)

	err := scanner.Scan(
		&rec.ID, &rec.BidID, &rec.OpportunityID,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &status,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.InstructionsSentAt,
		&rec.PaymentInitiatedAt, &rec.ReceivedAt, &rec.ReleasedAt, &rec.CancelledAt,
	)
	if err != nil {
		return domain.HoldingRecord{}, err
	}

	rec.Status = domain.HoldingStatus(status)
	for i, dst := range []*decimal.Decimal{
		&rec.Amount, &rec.BuyerTotal, &rec.SellerNet,
		&rec.PlatformFee, &rec.BuyerFeePct, &rec.SellerFeePct,
	} {
		d, err := decimal.NewFromString(raw[i])
		if err != nil {
			return domain.HoldingRecord{}, fmt.Errorf("parse holding amount %q: %w", raw[i], err)
		}
		*dst = d
	}
	return rec, nil
}

// GetByID retrieves a single holding record by ID.
func (s *HoldingStore) GetByID(ctx context.Context, id string) (domain.HoldingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdingSelectCols+` FROM holding_records WHERE id = $1`, id)

	rec, err := scanHoldingFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.HoldingRecord{}, domain.ErrNotFound
		}
		return domain.HoldingRecord{}, fmt.Errorf("postgres: get holding record %s: %w", id, err)
	}
	return rec, nil
}

// GetByBidID retrieves the holding record paired with the given bid.
func (s *HoldingStore) GetByBidID(ctx context.Context, bidID string) (domain.HoldingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdingSelectCols+` FROM holding_records WHERE bid_id = $1`, bidID)

	rec, err := scanHoldingFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.HoldingRecord{}, domain.ErrNotFound
		}
		return domain.HoldingRecord{}, fmt.Errorf("postgres: get holding record for bid %s: %w", bidID, err)
	}
	return rec, nil
}

// ListStale returns holding records sitting in any of the given statuses
// since before olderThan, oldest first. Used by the sweeper.
func (s *HoldingStore) ListStale(ctx context.Context, statuses []domain.HoldingStatus, olderThan time.Time, limit int) ([]domain.HoldingRecord, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+holdingSelectCols+` FROM holding_records
		 WHERE status = ANY($1) AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		strs, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale holding records: %w", err)
	}
	defer rows.Close()

	var recs []domain.HoldingRecord
	for rows.Next() {
		rec, err := scanHoldingFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stale holding records: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Compile-time interface check.
var _ domain.HoldingStore = (*HoldingStore)(nil)
