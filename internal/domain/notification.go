package domain

import "time"

// NotificationType tags a notification for recipient-side filtering.
type NotificationType string

const (
	NotificationBidSubmitted        NotificationType = "bid_submitted"
	NotificationBidApproved         NotificationType = "bid_approved"
	NotificationBidDeclined         NotificationType = "bid_declined"
	NotificationWorkAuthorized      NotificationType = "work_authorized"
	NotificationCompletionRequested NotificationType = "completion_requested"
	NotificationPaymentInstructions NotificationType = "payment_instructions"
	NotificationPaymentReceived     NotificationType = "payment_received"
	NotificationReleaseReady        NotificationType = "release_ready"
	NotificationPaymentReleased     NotificationType = "payment_released"
	NotificationHoldingCancelled    NotificationType = "holding_cancelled"
	NotificationSweepReminder       NotificationType = "sweep_reminder"
)

// Notification is an immutable, fire-and-forget message to one recipient,
// created as a side effect of a workflow transition. The engine never reads
// or mutates one after creation.
type Notification struct {
	ID          string
	RecipientID string // member ID
	OrgID       string
	Type        NotificationType
	Title       string
	Message     string

	// Optional back-references to the entities the message is about.
	OpportunityID *string
	BidID         *string

	CreatedAt time.Time
}
