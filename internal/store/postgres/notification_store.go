package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
// Rows are written inside workflow transactions (see tx.go); this store only
// reads the append-only log.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// ListByRecipient returns notifications addressed to the given member,
// newest first.
func (s *NotificationStore) ListByRecipient(ctx context.Context, recipientID string, opts domain.ListOpts) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient_id, org_id, type, title, message,
		        opportunity_id, bid_id, created_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		recipientID, listLimit(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications for %s: %w", recipientID, err)
	}
	defer rows.Close()

	var ns []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.OrgID, &typ, &n.Title, &n.Message,
			&n.OpportunityID, &n.BidID, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		ns = append(ns, n)
	}
	return ns, rows.Err()
}

// Compile-time interface check.
var _ domain.NotificationStore = (*NotificationStore)(nil)
