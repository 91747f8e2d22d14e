package domain

import "testing"

func TestHoldingStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to HoldingStatus }{
		{HoldingStatusPending, HoldingStatusInstructionsSent},
		{HoldingStatusInstructionsSent, HoldingStatusPaymentInitiated},
		{HoldingStatusInstructionsSent, HoldingStatusReceived}, // initiation step is optional
		{HoldingStatusPaymentInitiated, HoldingStatusReceived},
		{HoldingStatusReceived, HoldingStatusReleased},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransition(tt.to) {
			t.Errorf("%s -> %s should be allowed", tt.from, tt.to)
		}
	}

	forbidden := []struct{ from, to HoldingStatus }{
		{HoldingStatusPending, HoldingStatusReceived},          // no skipping instructions
		{HoldingStatusPending, HoldingStatusReleased},
		{HoldingStatusInstructionsSent, HoldingStatusReleased}, // funds must land first
		{HoldingStatusReceived, HoldingStatusInstructionsSent}, // no reversal
		{HoldingStatusReleased, HoldingStatusReceived},
		{HoldingStatusReleased, HoldingStatusCancelled},        // terminal
		{HoldingStatusCancelled, HoldingStatusPending},
	}
	for _, tt := range forbidden {
		if tt.from.CanTransition(tt.to) {
			t.Errorf("%s -> %s should be forbidden", tt.from, tt.to)
		}
	}
}

func TestHoldingCancelFromAnyNonTerminal(t *testing.T) {
	for _, s := range []HoldingStatus{
		HoldingStatusPending,
		HoldingStatusInstructionsSent,
		HoldingStatusPaymentInitiated,
		HoldingStatusReceived,
	} {
		if !s.CanTransition(HoldingStatusCancelled) {
			t.Errorf("%s -> cancelled should be allowed", s)
		}
	}
}

func TestHoldingStatusTerminal(t *testing.T) {
	for _, s := range []HoldingStatus{HoldingStatusReleased, HoldingStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []HoldingStatus{HoldingStatusPending, HoldingStatusInstructionsSent, HoldingStatusPaymentInitiated, HoldingStatusReceived} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
