package app

import (
	"errors"

	"meeting-scheduler/internal/policy"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSlotUnavailable  = errors.New("this time slot is no longer available")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
)

// PolicyError carries every policy check a proposed booking failed.
type PolicyError struct {
	Violations policy.Violations
}

func (e *PolicyError) Error() string { return e.Violations.Err().Error() }

func (e *PolicyError) Unwrap() error { return e.Violations.Err() }

func AsPolicyError(err error) *PolicyError {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}
