package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestGuardErrorMatchesSentinel(t *testing.T) {
	var err error = &GuardError{Entity: "bid", ID: "b-1", Op: "approve", Status: "declined"}

	if !errors.Is(err, ErrGuardFailed) {
		t.Fatal("GuardError should match ErrGuardFailed")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("GuardError must not match unrelated sentinels")
	}

	wrapped := fmt.Errorf("service: approve: %w", err)
	if !errors.Is(wrapped, ErrGuardFailed) {
		t.Fatal("wrapped GuardError should still match ErrGuardFailed")
	}
	var guard *GuardError
	if !errors.As(wrapped, &guard) || guard.Status != "declined" {
		t.Fatalf("errors.As = %+v, want the observed status preserved", guard)
	}
}
