package domain

import "time"

// EventChannel is the bus channel carrying workflow transition events.
const EventChannel = "ch:workflow"

// WorkflowEvent is the JSON payload published after a transition commits.
type WorkflowEvent struct {
	Event         string    `json:"event"`
	OpportunityID string    `json:"opportunity_id,omitempty"`
	BidID         string    `json:"bid_id,omitempty"`
	RecordID      string    `json:"record_id,omitempty"`
	Status        string    `json:"status"`
	At            time.Time `json:"at"`
}
