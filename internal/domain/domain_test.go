package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseBatchStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    BatchStatus
		wantErr bool
	}{
		{name: "valid uppercase", input: "TO_ASSIGN", want: BatchStatusToAssign},
		{name: "valid lowercase with spaces", input: " payment_ready ", want: BatchStatusPaymentReady},
		{name: "invalid", input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBatchStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseBatchStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseBatchStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseBatchStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRoleRejectsSystem(t *testing.T) {
	t.Parallel()

	got, err := ParseRoleFromString(" team_lead ")
	if err != nil {
		t.Fatalf("ParseRoleFromString() unexpected error = %v", err)
	}
	if got != RoleTeamLead {
		t.Fatalf("ParseRoleFromString() = %s, want %s", got, RoleTeamLead)
	}

	_, err = ParseRoleFromString("system")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseRoleFromString(system) error = %v, want ErrValidation", err)
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[BatchStatus]bool{
		BatchStatusClosed:          true,
		BatchStatusRejected:        true,
		BatchStatusPaymentRejected: true,
	}
	for _, status := range AllBatchStatuses {
		if got := status.IsTerminal(); got != terminal[status] {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, terminal[status])
		}
	}
}

func TestDocumentStatePool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state        DocumentState
		reassignable bool
		terminal     bool
		active       bool
	}{
		{state: DocumentStateUnassigned, reassignable: true},
		{state: DocumentStateAssigned, active: true},
		{state: DocumentStateInProgress, active: true},
		{state: DocumentStateTreated, terminal: true},
		{state: DocumentStateRejected, terminal: true},
		{state: DocumentStateReturned, reassignable: true},
	}

	for _, tt := range tests {
		if got := tt.state.IsReassignable(); got != tt.reassignable {
			t.Fatalf("%s.IsReassignable() = %v, want %v", tt.state, got, tt.reassignable)
		}
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Fatalf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
		if got := tt.state.IsActive(); got != tt.active {
			t.Fatalf("%s.IsActive() = %v, want %v", tt.state, got, tt.active)
		}
	}
}

func TestDocumentCanMoveTo(t *testing.T) {
	t.Parallel()

	if !DocumentStateAssigned.CanMoveTo(DocumentStateInProgress) {
		t.Fatal("ASSIGNED -> IN_PROGRESS should be allowed")
	}
	if !DocumentStateInProgress.CanMoveTo(DocumentStateReturned) {
		t.Fatal("IN_PROGRESS -> RETURNED should be allowed")
	}
	if DocumentStateTreated.CanMoveTo(DocumentStateInProgress) {
		t.Fatal("TREATED is terminal")
	}
	if DocumentStateUnassigned.CanMoveTo(DocumentStateAssigned) {
		t.Fatal("pool -> ASSIGNED goes through assignment, not state updates")
	}
}

func TestWorkloadOverload(t *testing.T) {
	t.Parallel()

	if w := NewWorkload("h1", 21, 0); !w.Overloaded || w.Capacity != DefaultCapacity {
		t.Fatalf("NewWorkload(21) = %+v, want overloaded with default capacity", w)
	}
	if w := NewWorkload("h1", 20, 0); w.Overloaded {
		t.Fatalf("NewWorkload(20) = %+v, want not overloaded", w)
	}
	if got := NewWorkload("h1", 5, 10).UtilizationRate(); got != 50 {
		t.Fatalf("UtilizationRate() = %v, want 50", got)
	}
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	closedAt := time.Now()
	negative := -1

	tests := []struct {
		name    string
		batch   Batch
		wantErr bool
	}{
		{name: "valid", batch: Batch{ClientReference: "ACME", Status: BatchStatusReceived}},
		{name: "missing client", batch: Batch{Status: BatchStatusReceived}, wantErr: true},
		{name: "invalid status", batch: Batch{ClientReference: "ACME", Status: "NOPE"}, wantErr: true},
		{name: "negative delay", batch: Batch{ClientReference: "ACME", Status: BatchStatusReceived, ContractualDelayDays: &negative}, wantErr: true},
		{name: "closure date before closed", batch: Batch{ClientReference: "ACME", Status: BatchStatusProcessed, ClosedAt: &closedAt}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.batch.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	var err error = &TransitionError{From: BatchStatusReceived, To: BatchStatusClosed, Reason: ReasonUnreachable}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("TransitionError should match ErrInvalidTransition")
	}

	err = &NotReassignableError{ItemID: "d1", State: DocumentStateAssigned}
	if !errors.Is(err, ErrNotReassignable) {
		t.Fatalf("NotReassignableError should match ErrNotReassignable")
	}
	var typed *NotReassignableError
	if !errors.As(err, &typed) || typed.State != DocumentStateAssigned {
		t.Fatalf("errors.As() did not expose state")
	}
}
