package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentState represents the processing state of a single claim document.
type DocumentState string

const (
	DocumentStateUnassigned DocumentState = "UNASSIGNED"
	DocumentStateAssigned   DocumentState = "ASSIGNED"
	DocumentStateInProgress DocumentState = "IN_PROGRESS"
	DocumentStateTreated    DocumentState = "TREATED"
	DocumentStateRejected   DocumentState = "REJECTED"
	DocumentStateReturned   DocumentState = "RETURNED"
)

func (s DocumentState) String() string { return string(s) }

func (s DocumentState) IsValid() bool {
	switch s {
	case DocumentStateUnassigned, DocumentStateAssigned, DocumentStateInProgress,
		DocumentStateTreated, DocumentStateRejected, DocumentStateReturned:
		return true
	}
	return false
}

// IsTerminal reports the normal end states. RETURNED is exceptional and
// re-enters the assignable pool, so it is not terminal.
func (s DocumentState) IsTerminal() bool {
	return s == DocumentStateTreated || s == DocumentStateRejected
}

// IsReassignable reports membership of the re-assignable pool.
func (s DocumentState) IsReassignable() bool {
	return s == DocumentStateUnassigned || s == DocumentStateReturned
}

// IsActive reports whether the document counts towards its handler's workload.
func (s DocumentState) IsActive() bool {
	return s == DocumentStateAssigned || s == DocumentStateInProgress
}

// ReassignableDocumentStates lists the pool states, used for conditional writes.
var ReassignableDocumentStates = []DocumentState{DocumentStateUnassigned, DocumentStateReturned}

// ActiveDocumentStates lists the states counted by the workload computation.
var ActiveDocumentStates = []DocumentState{DocumentStateAssigned, DocumentStateInProgress}

func ParseDocumentStateFromString(s string) (DocumentState, error) {
	st := DocumentState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid document state %q", ErrValidation, s)
	}
	return st, nil
}

// CanMoveTo reports the document-level transitions reachable through
// processing actions. Assignment (pool -> ASSIGNED) goes through the balancer.
func (s DocumentState) CanMoveTo(next DocumentState) bool {
	switch s {
	case DocumentStateAssigned:
		switch next {
		case DocumentStateInProgress, DocumentStateTreated, DocumentStateRejected, DocumentStateReturned:
			return true
		}
	case DocumentStateInProgress:
		switch next {
		case DocumentStateTreated, DocumentStateRejected, DocumentStateReturned:
			return true
		}
	}
	return false
}

// Document is an individual claim record within a batch.
type Document struct {
	ID                string
	BatchID           string
	State             DocumentState
	AssignedHandlerID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAssigned reports whether the document is held by a handler outside the pool.
func (d Document) IsAssigned() bool {
	return d.AssignedHandlerID != nil && *d.AssignedHandlerID != "" && !d.State.IsReassignable()
}

func (d *Document) Validate() error {
	if strings.TrimSpace(d.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !d.State.IsValid() {
		return fmt.Errorf("%w: invalid document state %q", ErrValidation, d.State)
	}
	return nil
}

// DocumentStateChange is a conditional document state update.
type DocumentStateChange struct {
	DocumentID string
	From       DocumentState
	To         DocumentState
	At         time.Time
}
