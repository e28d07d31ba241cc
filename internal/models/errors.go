package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a donation form is missing a required field.
	ErrValidation = errors.New("validation failed")
	// ErrStoreWrite wraps a rejected create or update against the record store.
	ErrStoreWrite = errors.New("store write failed")
	// ErrInvalidTransition is returned when a status change is out of order or leaves a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnauthorized is returned when a transition is attempted without operator rights.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a donation id is unknown.
	ErrNotFound = errors.New("donation not found")
	// ErrTransitionInFlight is returned while a transition for the same record is still outstanding.
	ErrTransitionInFlight = errors.New("transition already in flight")
	// ErrRoleAlreadySelected is returned when a session tries to pick a second role.
	ErrRoleAlreadySelected = errors.New("role already selected")
)

// ValidationError describes the intake field that blocked a submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any ValidationError with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
