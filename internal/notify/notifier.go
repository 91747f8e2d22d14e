// Package notify implements the notification gateway consumed by the
// workflow engine. Notification rows are persisted inside the workflow
// transaction; external delivery fans out to all registered senders after
// commit, best-effort, and can be filtered by notification type so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// Sender is the interface that each delivery channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "webhook").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed notification types; Notify only forwards messages whose
// type is in the allowed set. If no types were configured, all pass.
type Notifier struct {
	senders []Sender
	types   map[domain.NotificationType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
// Only notifications whose type appears in types are forwarded; an empty
// list allows everything.
func NewNotifier(senders []Sender, types []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.NotificationType]bool, len(types))
	for _, t := range types {
		allowed[domain.NotificationType(strings.TrimSpace(t))] = true
	}
	return &Notifier{
		senders: senders,
		types:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders if its type passes the filter.
func (n *Notifier) Notify(ctx context.Context, typ domain.NotificationType, title, message string) error {
	if len(n.types) > 0 && !n.types[typ] {
		n.logger.DebugContext(ctx, "notification type filtered out",
			slog.String("type", string(typ)),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
