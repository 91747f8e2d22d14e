package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrGuardFailed   = errors.New("precondition failed")
	ErrInvalidInput  = errors.New("invalid input")
	ErrLockHeld      = errors.New("lock already held")
)

// GuardError reports a state-machine precondition failure: the entity was not
// in a status from which the requested operation is permitted. Concurrent
// actors routinely race to apply the same transition, so callers must treat
// this as an expected, recoverable outcome rather than a fault.
type GuardError struct {
	Entity string // "opportunity", "bid", or "holding_record"
	ID     string
	Op     string
	Status string // status observed under lock
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s while %q", e.Entity, e.ID, e.Op, e.Status)
}

// Is makes errors.Is(err, ErrGuardFailed) match any GuardError.
func (e *GuardError) Is(target error) bool {
	return target == ErrGuardFailed
}
