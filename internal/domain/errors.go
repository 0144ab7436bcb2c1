package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleState        = errors.New("stale state")
	ErrNotReassignable   = errors.New("not reassignable")
)

// TransitionReason names the check that rejected a transition.
type TransitionReason string

const (
	ReasonUnreachable  TransitionReason = "unreachable"
	ReasonForbidden    TransitionReason = "forbidden"
	ReasonPrecondition TransitionReason = "precondition"
	ReasonArchived     TransitionReason = "archived"
)

// TransitionError reports why a requested status change was rejected.
type TransitionError struct {
	From   BatchStatus
	To     BatchStatus
	Reason TransitionReason
	Detail string
}

func (e *TransitionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s -> %s (%s)", ErrInvalidTransition, e.From, e.To, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NotReassignableError carries the current document state for diagnostics.
type NotReassignableError struct {
	ItemID string
	State  DocumentState
}

func (e *NotReassignableError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: document %s is in state %s", ErrNotReassignable, e.ItemID, e.State)
}

func (e *NotReassignableError) Is(target error) bool {
	return target == ErrNotReassignable
}
