package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

var admin = domain.Actor{UserID: "admin", Role: domain.RoleAdministrator}

func TestHappyPathReachesClosed(t *testing.T) {
	t.Parallel()

	path := []struct {
		to   domain.BatchStatus
		role domain.Role
	}{
		{domain.BatchStatusToScan, domain.RoleIntakeClerk},
		{domain.BatchStatusScanning, domain.RoleScanOperator},
		{domain.BatchStatusScanned, domain.RoleScanOperator},
		{domain.BatchStatusToAssign, domain.RoleScanOperator},
		{domain.BatchStatusAssigned, domain.RoleTeamLead},
		{domain.BatchStatusInProgress, domain.RoleCaseHandler},
		{domain.BatchStatusProcessed, domain.RoleCaseHandler},
		{domain.BatchStatusPaymentReady, domain.RoleFinanceOfficer},
		{domain.BatchStatusPaymentInProgress, domain.RoleFinanceOfficer},
		{domain.BatchStatusPaymentExecuted, domain.RoleFinanceOfficer},
		{domain.BatchStatusClosed, domain.RoleFinanceOfficer},
	}

	snapshot := &domain.BatchSnapshot{
		Batch:           domain.Batch{ID: "b1", Status: InitialStatus},
		Documents:       []domain.Document{{ID: "d1", State: domain.DocumentStateTreated}},
		DocumentsLoaded: true,
		PaymentOrder:    &domain.PaymentOrder{Reference: "VIR-1", Executed: true},
	}

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i, step := range path {
		change, err := Plan(snapshot, step.to, domain.Actor{UserID: "u", Role: step.role}, now.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("step %d (%s -> %s) error = %v", i, snapshot.Batch.Status, step.to, err)
		}
		snapshot.Batch = Apply(snapshot.Batch, change)
	}

	batch := snapshot.Batch
	if batch.Status != domain.BatchStatusClosed {
		t.Fatalf("final status = %s, want CLOSED", batch.Status)
	}
	if batch.ScanStartedAt == nil || !batch.ScanStartedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("ScanStartedAt = %v, want %v", batch.ScanStartedAt, now.Add(time.Hour))
	}
	if batch.ScanEndedAt == nil || !batch.ScanEndedAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("ScanEndedAt = %v, want %v", batch.ScanEndedAt, now.Add(2*time.Hour))
	}
	if batch.ClosedAt == nil {
		t.Fatal("ClosedAt should be stamped on entering CLOSED")
	}
}

func TestEveryNonTerminalStatusCanReachATerminal(t *testing.T) {
	t.Parallel()

	for _, start := range domain.AllBatchStatuses {
		if start.IsTerminal() && start != domain.BatchStatusPaymentRejected {
			if len(Next(start)) != 0 {
				t.Fatalf("terminal status %s has outgoing edges %v", start, Next(start))
			}
			continue
		}

		seen := map[domain.BatchStatus]bool{start: true}
		queue := []domain.BatchStatus{start}
		reachedClosed := false
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if current == domain.BatchStatusClosed {
				reachedClosed = true
				break
			}
			for _, next := range Next(current) {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		if !reachedClosed {
			t.Fatalf("status %s cannot reach CLOSED", start)
		}
	}
}

func TestPlanRejectsNonAdjacentTargets(t *testing.T) {
	t.Parallel()

	for _, from := range domain.AllBatchStatuses {
		for _, to := range domain.AllBatchStatuses {
			if IsAllowed(from, to) {
				continue
			}
			snapshot := &domain.BatchSnapshot{Batch: domain.Batch{ID: "b", Status: from}, DocumentsLoaded: true}
			_, err := Plan(snapshot, to, admin, time.Now())
			var transitionErr *domain.TransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("Plan(%s -> %s) error = %v, want TransitionError", from, to, err)
			}
			if transitionErr.Reason != domain.ReasonUnreachable {
				t.Fatalf("Plan(%s -> %s) reason = %s, want unreachable", from, to, transitionErr.Reason)
			}
		}
	}
}

func TestPlanRolePermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    domain.BatchStatus
		to      domain.BatchStatus
		role    domain.Role
		allowed bool
	}{
		{name: "intake moves to scan", from: domain.BatchStatusReceived, to: domain.BatchStatusToScan, role: domain.RoleIntakeClerk, allowed: true},
		{name: "case handler cannot start scan", from: domain.BatchStatusToScan, to: domain.BatchStatusScanning, role: domain.RoleCaseHandler},
		{name: "finance cannot assign", from: domain.BatchStatusToAssign, to: domain.BatchStatusAssigned, role: domain.RoleFinanceOfficer},
		{name: "system completes assignment", from: domain.BatchStatusToAssign, to: domain.BatchStatusInProgress, role: domain.RoleSystem, allowed: true},
		{name: "system cannot reject", from: domain.BatchStatusInProgress, to: domain.BatchStatusRejected, role: domain.RoleSystem},
		{name: "only admin recovers payment rejection", from: domain.BatchStatusPaymentRejected, to: domain.BatchStatusPaymentReady, role: domain.RoleFinanceOfficer},
		{name: "admin recovers payment rejection", from: domain.BatchStatusPaymentRejected, to: domain.BatchStatusPaymentReady, role: domain.RoleAdministrator, allowed: true},
		{name: "team lead handles difficulty", from: domain.BatchStatusInDifficulty, to: domain.BatchStatusToAssign, role: domain.RoleTeamLead, allowed: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshot := &domain.BatchSnapshot{Batch: domain.Batch{ID: "b", Status: tt.from}, DocumentsLoaded: true}
			_, err := Plan(snapshot, tt.to, domain.Actor{UserID: "u", Role: tt.role}, time.Now())
			if tt.allowed {
				if err != nil {
					t.Fatalf("Plan() unexpected error = %v", err)
				}
				return
			}

			var transitionErr *domain.TransitionError
			if !errors.As(err, &transitionErr) || transitionErr.Reason != domain.ReasonForbidden {
				t.Fatalf("Plan() error = %v, want forbidden TransitionError", err)
			}
		})
	}
}

func TestPlanClosurePreconditions(t *testing.T) {
	t.Parallel()

	executed := &domain.PaymentOrder{Reference: "VIR-1", Executed: true}
	pending := &domain.PaymentOrder{Reference: "VIR-1"}

	tests := []struct {
		name     string
		snapshot domain.BatchSnapshot
		wantErr  bool
	}{
		{
			name: "all terminal and executed",
			snapshot: domain.BatchSnapshot{
				Documents:       []domain.Document{{ID: "d1", State: domain.DocumentStateTreated}, {ID: "d2", State: domain.DocumentStateRejected}},
				DocumentsLoaded: true,
				PaymentOrder:    executed,
			},
		},
		{
			name: "document still in progress",
			snapshot: domain.BatchSnapshot{
				Documents:       []domain.Document{{ID: "d1", State: domain.DocumentStateInProgress}},
				DocumentsLoaded: true,
				PaymentOrder:    executed,
			},
			wantErr: true,
		},
		{
			name: "returned document blocks closure",
			snapshot: domain.BatchSnapshot{
				Documents:       []domain.Document{{ID: "d1", State: domain.DocumentStateReturned}},
				DocumentsLoaded: true,
				PaymentOrder:    executed,
			},
			wantErr: true,
		},
		{
			name: "payment pending",
			snapshot: domain.BatchSnapshot{
				Documents:       []domain.Document{{ID: "d1", State: domain.DocumentStateTreated}},
				DocumentsLoaded: true,
				PaymentOrder:    pending,
			},
			wantErr: true,
		},
		{
			name:     "no payment order",
			snapshot: domain.BatchSnapshot{DocumentsLoaded: true},
			wantErr:  true,
		},
		{
			name:     "documents not loaded",
			snapshot: domain.BatchSnapshot{PaymentOrder: executed},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshot := tt.snapshot
			snapshot.Batch = domain.Batch{ID: "b1", Status: domain.BatchStatusPaymentExecuted}

			change, err := Plan(&snapshot, domain.BatchStatusClosed, admin, time.Now())
			if tt.wantErr {
				var transitionErr *domain.TransitionError
				if !errors.As(err, &transitionErr) || transitionErr.Reason != domain.ReasonPrecondition {
					t.Fatalf("Plan() error = %v, want precondition TransitionError", err)
				}
				if snapshot.Batch.Status != domain.BatchStatusPaymentExecuted {
					t.Fatal("snapshot must not be modified on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Plan() unexpected error = %v", err)
			}
			if change.ClosedAt == nil {
				t.Fatal("ClosedAt should be set")
			}
		})
	}
}

func TestPlanRejectsArchived(t *testing.T) {
	t.Parallel()

	snapshot := &domain.BatchSnapshot{Batch: domain.Batch{ID: "b1", Status: domain.BatchStatusReceived, Archived: true}}
	_, err := Plan(snapshot, domain.BatchStatusToScan, admin, time.Now())
	var transitionErr *domain.TransitionError
	if !errors.As(err, &transitionErr) || transitionErr.Reason != domain.ReasonArchived {
		t.Fatalf("Plan() error = %v, want archived TransitionError", err)
	}
}

func TestPlanInvalidTarget(t *testing.T) {
	t.Parallel()

	snapshot := &domain.BatchSnapshot{Batch: domain.Batch{ID: "b1", Status: domain.BatchStatusReceived}}
	if _, err := Plan(snapshot, "BOGUS", admin, time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Plan() error = %v, want ErrValidation", err)
	}
	if _, err := Plan(nil, domain.BatchStatusToScan, admin, time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Plan(nil) error = %v, want ErrValidation", err)
	}
}
