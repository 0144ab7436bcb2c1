package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the pipeline state of a bordereau.
type BatchStatus string

const (
	BatchStatusReceived          BatchStatus = "RECEIVED"
	BatchStatusToScan            BatchStatus = "TO_SCAN"
	BatchStatusScanning          BatchStatus = "SCANNING"
	BatchStatusScanned           BatchStatus = "SCANNED"
	BatchStatusToAssign          BatchStatus = "TO_ASSIGN"
	BatchStatusAssigned          BatchStatus = "ASSIGNED"
	BatchStatusInProgress        BatchStatus = "IN_PROGRESS"
	BatchStatusProcessed         BatchStatus = "PROCESSED"
	BatchStatusPaymentReady      BatchStatus = "PAYMENT_READY"
	BatchStatusPaymentInProgress BatchStatus = "PAYMENT_IN_PROGRESS"
	BatchStatusPaymentExecuted   BatchStatus = "PAYMENT_EXECUTED"
	BatchStatusClosed            BatchStatus = "CLOSED"
	BatchStatusOnHold            BatchStatus = "ON_HOLD"
	BatchStatusInDifficulty      BatchStatus = "IN_DIFFICULTY"
	BatchStatusRejected          BatchStatus = "REJECTED"
	BatchStatusPaymentRejected   BatchStatus = "PAYMENT_REJECTED"
)

// AllBatchStatuses lists every status in pipeline order followed by the side branches.
var AllBatchStatuses = []BatchStatus{
	BatchStatusReceived,
	BatchStatusToScan,
	BatchStatusScanning,
	BatchStatusScanned,
	BatchStatusToAssign,
	BatchStatusAssigned,
	BatchStatusInProgress,
	BatchStatusProcessed,
	BatchStatusPaymentReady,
	BatchStatusPaymentInProgress,
	BatchStatusPaymentExecuted,
	BatchStatusClosed,
	BatchStatusOnHold,
	BatchStatusInDifficulty,
	BatchStatusRejected,
	BatchStatusPaymentRejected,
}

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	for _, candidate := range AllBatchStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further pipeline work is expected. PAYMENT_REJECTED
// is terminal for financial purposes even though an administrator may recover it.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusClosed, BatchStatusRejected, BatchStatusPaymentRejected:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch is a claims submission tracked as a unit through the pipeline.
type Batch struct {
	ID                   string
	ClientReference      string
	ReceptionDate        *time.Time
	ContractualDelayDays *int
	Status               BatchStatus
	AssignedHandlerID    *string
	ScanStartedAt        *time.Time
	ScanEndedAt          *time.Time
	ClosedAt             *time.Time
	PaymentOrderRef      *string
	Archived             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ClientReference) == "" {
		return fmt.Errorf("%w: client reference is required", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	if b.ContractualDelayDays != nil && *b.ContractualDelayDays < 0 {
		return fmt.Errorf("%w: contractual delay must be >= 0", ErrValidation)
	}
	if b.ClosedAt != nil && b.Status != BatchStatusClosed {
		return fmt.Errorf("%w: closure date set on a batch in status %s", ErrValidation, b.Status)
	}
	return nil
}

// BatchSnapshot is a consistent read of a batch together with the facts the
// state machine and the reconciler evaluate.
type BatchSnapshot struct {
	Batch           Batch
	Documents       []Document
	PaymentOrder    *PaymentOrder
	DocumentsLoaded bool
}

// PaymentExecuted reports whether the linked payment order has been executed.
func (s *BatchSnapshot) PaymentExecuted() bool {
	return s != nil && s.PaymentOrder != nil && s.PaymentOrder.Executed
}

// StatusChange is a fully planned transition. It is applied atomically with
// compare-and-swap semantics on From.
type StatusChange struct {
	BatchID       string
	From          BatchStatus
	To            BatchStatus
	ActorID       string
	ActorRole     Role
	ScanStartedAt *time.Time
	ScanEndedAt   *time.Time
	ClosedAt      *time.Time
	At            time.Time
}

// TransitionLogEntry records one applied status change.
type TransitionLogEntry struct {
	ID        string
	BatchID   string
	From      BatchStatus
	To        BatchStatus
	ActorID   string
	ActorRole Role
	CreatedAt time.Time
}
