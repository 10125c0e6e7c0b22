package models

import (
	"errors"
	"fmt"
)

// Error kinds. Detailed errors below unwrap to one of these so callers can
// branch with errors.Is and still inspect details with errors.As.
var (
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrValidation             = errors.New("validation failed")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInsufficientPool       = errors.New("insufficient pool")
	ErrParcelNotAffected      = errors.New("parcel not affected by notification")
	ErrAlreadyDrawn           = errors.New("draw already conducted")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")

	// Cross-entity preconditions enforced by the workflow facade.
	ErrParcelPossessed   = errors.New("parcel already possessed")
	ErrValuationMissing  = errors.New("parcel has no valuation")
	ErrInventoryAllotted = errors.New("inventory item allotted elsewhere")
)

// TransitionError reports an action attempted from a status that does not allow it.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s %s from status %q", ErrIllegalTransition, e.Action, e.Entity, e.From)
	if e.ID != "" {
		msg += " (id " + e.ID + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ForbiddenError reports a role that may not perform an action.
type ForbiddenError struct {
	Role   Role
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s: role %q may not perform %s", ErrForbidden, e.Role, e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConcurrencyError reports a lost race on an entity.
type ConcurrencyError struct {
	Kind     Kind
	ID       string
	Expected int
	Actual   int
}

func (e *ConcurrencyError) Error() string {
	if e.Expected == 0 && e.Actual == 0 {
		return fmt.Sprintf("%s: %s %s is locked by another transaction", ErrConcurrentModification, e.Kind, e.ID)
	}
	return fmt.Sprintf("%s: %s %s expected version %d, found %d",
		ErrConcurrentModification, e.Kind, e.ID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrentModification }
