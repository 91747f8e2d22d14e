package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// dispatchTimeout bounds each post-commit delivery attempt.
const dispatchTimeout = 15 * time.Second

// Gateway composes per-recipient notification rows for the workflow engine
// and dispatches external copies after the owning transaction commits.
type Gateway struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewGateway creates a Gateway delivering through the given Notifier.
func NewGateway(notifier *Notifier, logger *slog.Logger) *Gateway {
	return &Gateway{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_gateway")),
	}
}

// Compose builds one notification row per addressed member. The caller
// persists the rows inside its workflow transaction.
func (g *Gateway) Compose(
	members []domain.Member,
	typ domain.NotificationType,
	title, message string,
	opportunityID, bidID *string,
) []domain.Notification {
	now := time.Now().UTC()
	ns := make([]domain.Notification, 0, len(members))
	for _, m := range members {
		ns = append(ns, domain.Notification{
			ID:            uuid.New().String(),
			RecipientID:   m.ID,
			OrgID:         m.OrgID,
			Type:          typ,
			Title:         title,
			Message:       message,
			OpportunityID: opportunityID,
			BidID:         bidID,
			CreatedAt:     now,
		})
	}
	return ns
}

// Dispatch sends the external copy of a committed notification in a detached
// goroutine. Failures are logged and swallowed: delivery is fire-and-forget
// and must never affect (or outlive the commitment of) the transition that
// produced it.
func (g *Gateway) Dispatch(typ domain.NotificationType, title, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := g.notifier.Notify(ctx, typ, title, message); err != nil {
			g.logger.WarnContext(ctx, "notification dispatch failed",
				slog.String("type", string(typ)),
				slog.String("title", title),
				slog.String("error", err.Error()),
			)
		}
	}()
}
