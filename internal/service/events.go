// Package service contains the bid lifecycle machine, the holding record
// machine, the workflow orchestrator that fronts them, and the supporting
// directory and sweep services. All state mutation funnels through these
// services; stores are never written to directly by callers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// publishEvent publishes a committed transition event on the bus.
// Best-effort: failures are logged and swallowed, never surfaced to the
// caller whose transition already committed.
func publishEvent(ctx context.Context, bus domain.EventBus, logger *slog.Logger, evt domain.WorkflowEvent) {
	if bus == nil {
		return
	}
	evt.At = time.Now().UTC()

	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WarnContext(ctx, "marshal workflow event failed",
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		logger.WarnContext(ctx, "publish workflow event failed",
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
	}
}

// outbound is an external notification copy queued during a transaction and
// dispatched only after commit.
type outbound struct {
	typ     domain.NotificationType
	title   string
	message string
}

// notifyOrg persists one notification row per member of orgID inside the
// caller's transaction and queues a single external copy for dispatch after
// commit.
func notifyOrg(ctx context.Context, tx domain.WorkflowTx, gateway composer, out *[]outbound, orgID string, typ domain.NotificationType, title, message string, opportunityID, bidID *string) error {
	members, err := tx.Members(ctx, orgID)
	if err != nil {
		return fmt.Errorf("notify org %s: %w", orgID, err)
	}
	rows := gateway.Compose(members, typ, title, message, opportunityID, bidID)
	if err := tx.CreateNotifications(ctx, rows); err != nil {
		return fmt.Errorf("notify org %s: %w", orgID, err)
	}
	*out = append(*out, outbound{typ: typ, title: title, message: message})
	return nil
}

// notifyOperations does the same for every operations and admin member
// across the platform.
func notifyOperations(ctx context.Context, tx domain.WorkflowTx, gateway composer, out *[]outbound, typ domain.NotificationType, title, message string, opportunityID, bidID *string) error {
	members, err := tx.OperationsMembers(ctx)
	if err != nil {
		return fmt.Errorf("notify operations: %w", err)
	}
	rows := gateway.Compose(members, typ, title, message, opportunityID, bidID)
	if err := tx.CreateNotifications(ctx, rows); err != nil {
		return fmt.Errorf("notify operations: %w", err)
	}
	*out = append(*out, outbound{typ: typ, title: title, message: message})
	return nil
}

// composer turns a recipient list into persistable notification rows.
// Satisfied by notify.Gateway.
type composer interface {
	Compose(members []domain.Member, typ domain.NotificationType, title, message string, opportunityID, bidID *string) []domain.Notification
}
