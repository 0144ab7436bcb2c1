// Package workflow holds the batch status state machine: the allowed-edge
// table, the role permission table and transition planning.
package workflow

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

// Edge is a directed status change.
type Edge struct {
	From domain.BatchStatus
	To   domain.BatchStatus
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

// Administrators may take every allowed edge and are not listed per edge.
var permissions = map[Edge][]domain.Role{
	{domain.BatchStatusReceived, domain.BatchStatusToScan}:                   {domain.RoleIntakeClerk},
	{domain.BatchStatusToScan, domain.BatchStatusScanning}:                   {domain.RoleScanOperator},
	{domain.BatchStatusScanning, domain.BatchStatusScanned}:                  {domain.RoleScanOperator},
	{domain.BatchStatusScanned, domain.BatchStatusToAssign}:                  {domain.RoleScanOperator, domain.RoleTeamLead},
	{domain.BatchStatusToAssign, domain.BatchStatusAssigned}:                 {domain.RoleTeamLead},
	{domain.BatchStatusToAssign, domain.BatchStatusInProgress}:               {domain.RoleTeamLead, domain.RoleSystem},
	{domain.BatchStatusAssigned, domain.BatchStatusInProgress}:               {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusAssigned, domain.BatchStatusOnHold}:                   {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusAssigned, domain.BatchStatusInDifficulty}:             {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusAssigned, domain.BatchStatusRejected}:                 {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusInProgress, domain.BatchStatusProcessed}:              {domain.RoleCaseHandler, domain.RoleTeamLead, domain.RoleSystem},
	{domain.BatchStatusInProgress, domain.BatchStatusOnHold}:                 {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusInProgress, domain.BatchStatusInDifficulty}:           {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusInProgress, domain.BatchStatusRejected}:               {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusOnHold, domain.BatchStatusInProgress}:                 {domain.RoleCaseHandler, domain.RoleTeamLead},
	{domain.BatchStatusInDifficulty, domain.BatchStatusToAssign}:             {domain.RoleTeamLead},
	{domain.BatchStatusInDifficulty, domain.BatchStatusAssigned}:             {domain.RoleTeamLead},
	{domain.BatchStatusProcessed, domain.BatchStatusPaymentReady}:            {domain.RoleFinanceOfficer},
	{domain.BatchStatusProcessed, domain.BatchStatusClosed}:                  {domain.RoleSystem},
	{domain.BatchStatusPaymentReady, domain.BatchStatusPaymentInProgress}:    {domain.RoleFinanceOfficer},
	{domain.BatchStatusPaymentInProgress, domain.BatchStatusPaymentExecuted}: {domain.RoleFinanceOfficer},
	{domain.BatchStatusPaymentInProgress, domain.BatchStatusPaymentRejected}: {domain.RoleFinanceOfficer},
	{domain.BatchStatusPaymentInProgress, domain.BatchStatusClosed}:          {domain.RoleSystem},
	{domain.BatchStatusPaymentExecuted, domain.BatchStatusClosed}:            {domain.RoleFinanceOfficer, domain.RoleSystem},
	{domain.BatchStatusPaymentRejected, domain.BatchStatusPaymentReady}:      {},
}

// InitialStatus is the status every batch is created in.
const InitialStatus = domain.BatchStatusReceived

// IsAllowed reports whether the edge exists in the table.
func IsAllowed(from domain.BatchStatus, to domain.BatchStatus) bool {
	_, ok := permissions[Edge{From: from, To: to}]
	return ok
}

// CanPerform reports whether role may take the edge.
func CanPerform(from domain.BatchStatus, to domain.BatchStatus, role domain.Role) bool {
	roles, ok := permissions[Edge{From: from, To: to}]
	if !ok {
		return false
	}
	if role == domain.RoleAdministrator {
		return true
	}
	for _, allowed := range roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from status in one step, in enum order.
func Next(status domain.BatchStatus) []domain.BatchStatus {
	next := make([]domain.BatchStatus, 0, 4)
	for _, candidate := range domain.AllBatchStatuses {
		if IsAllowed(status, candidate) {
			next = append(next, candidate)
		}
	}
	return next
}

// Edges returns a copy of the edge table, used by tests and diagnostics.
func Edges() map[Edge][]domain.Role {
	out := make(map[Edge][]domain.Role, len(permissions))
	for edge, roles := range permissions {
		out[edge] = append([]domain.Role(nil), roles...)
	}
	return out
}

// Plan validates a transition against snapshot and returns the change to
// apply. The snapshot is not modified. Returns *domain.TransitionError when
// the target is unreachable, the role is not permitted, or a precondition is
// unmet.
func Plan(snapshot *domain.BatchSnapshot, target domain.BatchStatus, actor domain.Actor, now time.Time) (domain.StatusChange, error) {
	if snapshot == nil {
		return domain.StatusChange{}, fmt.Errorf("%w: batch snapshot is required", domain.ErrValidation)
	}
	if !target.IsValid() {
		return domain.StatusChange{}, fmt.Errorf("%w: invalid target status %q", domain.ErrValidation, target)
	}

	batch := snapshot.Batch
	from := batch.Status

	if batch.Archived {
		return domain.StatusChange{}, &domain.TransitionError{From: from, To: target, Reason: domain.ReasonArchived}
	}
	if !IsAllowed(from, target) {
		return domain.StatusChange{}, &domain.TransitionError{From: from, To: target, Reason: domain.ReasonUnreachable}
	}
	if !CanPerform(from, target, actor.Role) {
		return domain.StatusChange{}, &domain.TransitionError{
			From:   from,
			To:     target,
			Reason: domain.ReasonForbidden,
			Detail: fmt.Sprintf("role %s", actor.Role),
		}
	}
	if err := checkPreconditions(snapshot, target); err != nil {
		return domain.StatusChange{}, err
	}

	at := now.UTC()
	change := domain.StatusChange{
		BatchID:   batch.ID,
		From:      from,
		To:        target,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		At:        at,
	}

	if target == domain.BatchStatusScanning {
		change.ScanStartedAt = &at
	}
	if from == domain.BatchStatusScanning {
		change.ScanEndedAt = &at
	}
	if target == domain.BatchStatusClosed {
		change.ClosedAt = &at
	}

	return change, nil
}

func checkPreconditions(snapshot *domain.BatchSnapshot, target domain.BatchStatus) error {
	if target != domain.BatchStatusClosed {
		return nil
	}

	from := snapshot.Batch.Status
	if !snapshot.DocumentsLoaded {
		return &domain.TransitionError{From: from, To: target, Reason: domain.ReasonPrecondition, Detail: "documents not loaded"}
	}
	for _, doc := range snapshot.Documents {
		if !doc.State.IsTerminal() {
			return &domain.TransitionError{
				From:   from,
				To:     target,
				Reason: domain.ReasonPrecondition,
				Detail: fmt.Sprintf("document %s is %s", doc.ID, doc.State),
			}
		}
	}
	if !snapshot.PaymentExecuted() {
		return &domain.TransitionError{From: from, To: target, Reason: domain.ReasonPrecondition, Detail: "payment order not executed"}
	}
	return nil
}

// Apply returns batch with change applied. The memory store calls it once its
// conditional write matched.
func Apply(batch domain.Batch, change domain.StatusChange) domain.Batch {
	batch.Status = change.To
	if change.ScanStartedAt != nil {
		batch.ScanStartedAt = change.ScanStartedAt
	}
	if change.ScanEndedAt != nil {
		batch.ScanEndedAt = change.ScanEndedAt
	}
	if change.ClosedAt != nil {
		batch.ClosedAt = change.ClosedAt
	}
	batch.UpdatedAt = change.At
	return batch
}
