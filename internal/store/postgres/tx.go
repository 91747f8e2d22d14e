package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// Transactor implements domain.Transactor over a pgx connection pool. Every
// workflow transition runs through WithinTx so its guard reads and writes
// share one locked, consistent view.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor creates a Transactor backed by the given connection pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx begins a transaction, runs fn against it, and commits iff fn
// returns nil. Any error (including a panic unwinding through the deferred
// rollback) leaves the database untouched.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.WorkflowTx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &workflowTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// workflowTx implements domain.WorkflowTx over one pgx.Tx.
type workflowTx struct {
	tx pgx.Tx
}

// OpportunityForUpdate reads one opportunity under an exclusive row lock.
func (w *workflowTx) OpportunityForUpdate(ctx context.Context, id string) (domain.Opportunity, error) {
	row := w.tx.QueryRow(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities WHERE id = $1 FOR UPDATE`, id)

	o, err := scanOpportunityFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: lock opportunity %s: %w", id, err)
	}
	return o, nil
}

// BidForUpdate reads one bid under an exclusive row lock.
func (w *workflowTx) BidForUpdate(ctx context.Context, id string) (domain.Bid, error) {
	row := w.tx.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE id = $1 FOR UPDATE`, id)

	b, err := scanBidFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: lock bid %s: %w", id, err)
	}
	return b, nil
}

// OpenBidsForUpdate locks and returns every pending/under_review bid on the
// opportunity. Callers must already hold the opportunity row lock.
func (w *workflowTx) OpenBidsForUpdate(ctx context.Context, opportunityID string) ([]domain.Bid, error) {
	rows, err := w.tx.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE opportunity_id = $1 AND status IN ('pending', 'under_review')
		 ORDER BY created_at ASC
		 FOR UPDATE`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock open bids for %s: %w", opportunityID, err)
	}
	defer rows.Close()

	bids, err := scanBidRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open bids for %s: %w", opportunityID, err)
	}
	return bids, nil
}

// HoldingForUpdate reads one holding record under an exclusive row lock.
func (w *workflowTx) HoldingForUpdate(ctx context.Context, id string) (domain.HoldingRecord, error) {
	row := w.tx.QueryRow(ctx,
		`SELECT `+holdingSelectCols+` FROM holding_records WHERE id = $1 FOR UPDATE`, id)

	rec, err := scanHoldingFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.HoldingRecord{}, domain.ErrNotFound
		}
		return domain.HoldingRecord{}, fmt.Errorf("postgres: lock holding record %s: %w", id, err)
	}
	return rec, nil
}

// CreateBid inserts a new bid.
func (w *workflowTx) CreateBid(ctx context.Context, b domain.Bid) error {
	const query = `
		INSERT INTO bids (
			id, opportunity_id, seller_org_id, amount, proposal, status,
			buyer_fee_pct, seller_fee_pct, decline_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := w.tx.Exec(ctx, query,
		b.ID, b.OpportunityID, b.SellerOrgID, b.Amount.String(), b.Proposal,
		string(b.Status), b.BuyerFeePct.String(), b.SellerFeePct.String(),
		b.DeclineReason, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create bid %s: %w", b.ID, err)
	}
	return nil
}

// CreateHolding inserts a new holding record. The UNIQUE(bid_id) constraint
// backstops the one-record-per-bid invariant.
func (w *workflowTx) CreateHolding(ctx context.Context, rec domain.HoldingRecord) error {
	const query = `
		INSERT INTO holding_records (
			id, bid_id, opportunity_id, amount, buyer_total, seller_net,
			platform_fee, buyer_fee_pct, seller_fee_pct, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err := w.tx.Exec(ctx, query,
		rec.ID, rec.BidID, rec.OpportunityID,
		rec.Amount.String(), rec.BuyerTotal.String(), rec.SellerNet.String(),
		rec.PlatformFee.String(), rec.BuyerFeePct.String(), rec.SellerFeePct.String(),
		string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create holding record %s: %w", rec.ID, err)
	}
	return nil
}

// CreateNotifications appends notification rows in one batch.
func (w *workflowTx) CreateNotifications(ctx context.Context, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO notifications (
			id, recipient_id, org_id, type, title, message,
			opportunity_id, bid_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, n := range ns {
		batch.Queue(query,
			n.ID, n.RecipientID, n.OrgID, string(n.Type), n.Title, n.Message,
			n.OpportunityID, n.BidID, n.CreatedAt,
		)
	}

	results := w.tx.SendBatch(ctx, batch)
	defer results.Close()

	for range ns {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: create notifications: %w", err)
		}
	}
	return nil
}

// UpdateBidStatus changes a bid's status, stamping the matching stage
// timestamp in the same statement.
func (w *workflowTx) UpdateBidStatus(ctx context.Context, id string, status domain.BidStatus, declineReason string) error {
	var query string
	switch status {
	case domain.BidStatusApproved:
		query = `UPDATE bids SET status = $1, approved_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.BidStatusLive:
		query = `UPDATE bids SET status = $1, live_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.BidStatusCompletionPending:
		query = `UPDATE bids SET status = $1, completion_requested_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.BidStatusCompleted:
		query = `UPDATE bids SET status = $1, completed_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.BidStatusDeclined:
		tag, err := w.tx.Exec(ctx,
			`UPDATE bids SET status = $1, decline_reason = $2, declined_at = NOW(), updated_at = NOW() WHERE id = $3`,
			string(status), declineReason, id)
		if err != nil {
			return fmt.Errorf("postgres: decline bid %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	default:
		query = `UPDATE bids SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := w.tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update bid status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateOpportunityStatus changes an opportunity's status.
func (w *workflowTx) UpdateOpportunityStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := w.tx.Exec(ctx,
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

// UpdateHoldingStatus changes a holding record's status, stamping the
// matching stage timestamp in the same statement.
func (w *workflowTx) UpdateHoldingStatus(ctx context.Context, id string, status domain.HoldingStatus) error {
	var query string
	switch status {
	case domain.HoldingStatusInstructionsSent:
		query = `UPDATE holding_records SET status = $1, instructions_sent_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.HoldingStatusPaymentInitiated:
		query = `UPDATE holding_records SET status = $1, payment_initiated_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.HoldingStatusReceived:
		query = `UPDATE holding_records SET status = $1, received_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.HoldingStatusReleased:
		query = `UPDATE holding_records SET status = $1, released_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.HoldingStatusCancelled:
		query = `UPDATE holding_records SET status = $1, cancelled_at = NOW(), updated_at = NOW() WHERE id = $2`
	default:
		query = `UPDATE holding_records SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := w.tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update holding status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Members resolves recipients from within the transaction's snapshot.
func (w *workflowTx) Members(ctx context.Context, orgID string) ([]domain.Member, error) {
	rows, err := w.tx.Query(ctx,
		`SELECT id, org_id, email, name, created_at FROM members
		 WHERE org_id = $1 ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: tx list members of %s: %w", orgID, err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Email, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: tx scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// OperationsMembers returns the members of every operations or admin org.
func (w *workflowTx) OperationsMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := w.tx.Query(ctx,
		`SELECT m.id, m.org_id, m.email, m.name, m.created_at
		 FROM members m
		 JOIN organizations o ON o.id = m.org_id
		 WHERE o.role IN ('operations', 'admin')
		 ORDER BY m.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: tx list operations members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Email, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: tx scan operations member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Compile-time interface checks.
var (
	_ domain.Transactor = (*Transactor)(nil)
	_ domain.WorkflowTx = (*workflowTx)(nil)
)
