package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/sla"
	"go.uber.org/zap"
)

type slaFixture struct {
	*fixture
	monitor *SLAMonitor
	clock   time.Time
}

func newSLAFixture(t *testing.T) *slaFixture {
	t.Helper()

	f := &slaFixture{fixture: newFixture(t), clock: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	monitor, err := NewSLAMonitor(f.store.Batches(), f.store.Users(), f.notifier, 1, f.metrics, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSLAMonitor() error = %v", err)
	}
	monitor.now = func() time.Time { return f.clock }
	f.monitor = monitor

	f.seedHandler(t, "h1", domain.RoleCaseHandler, nil)
	f.seedHandler(t, "lead-1", domain.RoleTeamLead, nil)

	f.seedDatedBatch(t, "late", domain.BatchStatusInProgress, 10, ptr(5), ptr("h1"))
	f.seedDatedBatch(t, "tight", domain.BatchStatusToScan, 8, ptr(10), nil)
	f.seedDatedBatch(t, "fine", domain.BatchStatusReceived, 1, ptr(30), nil)
	f.seedDatedBatch(t, "undated", domain.BatchStatusReceived, 0, nil, nil)
	f.seedDatedBatch(t, "closed-late", domain.BatchStatusClosed, 40, ptr(5), ptr("h1"))
	return f
}

func (f *slaFixture) seedDatedBatch(t *testing.T, id string, status domain.BatchStatus, ageDays int, delay *int, holder *string) {
	t.Helper()

	b := domain.Batch{ID: id, ClientReference: "client-" + id, Status: status, ContractualDelayDays: delay, AssignedHandlerID: holder}
	if ageDays > 0 {
		received := f.clock.Add(-time.Duration(ageDays) * 24 * time.Hour)
		b.ReceptionDate = &received
	}
	if err := f.store.Batches().Create(context.Background(), &b); err != nil {
		t.Fatalf("create batch %s: %v", id, err)
	}
}

func TestSLAMonitorBreaches(t *testing.T) {
	t.Parallel()

	f := newSLAFixture(t)

	breaches, err := f.monitor.Breaches(context.Background(), teamLead)
	if err != nil {
		t.Fatalf("Breaches() error = %v", err)
	}
	if len(breaches) != 2 {
		t.Fatalf("breaches = %+v, want late and tight", breaches)
	}

	tests := []struct {
		got          SLABreach
		wantID       string
		wantBand     sla.Band
		wantSeverity BreachSeverity
		wantLeft     int
	}{
		{got: breaches[0], wantID: "late", wantBand: sla.BandOverdue, wantSeverity: BreachCritical, wantLeft: -5},
		{got: breaches[1], wantID: "tight", wantBand: sla.BandAtRisk, wantSeverity: BreachWarning, wantLeft: 2},
	}
	for _, tt := range tests {
		if tt.got.BatchID != tt.wantID || tt.got.SLA.Band != tt.wantBand || tt.got.Severity != tt.wantSeverity || tt.got.SLA.RemainingDays != tt.wantLeft {
			t.Fatalf("breach = %+v, want %s %s %s remaining=%d", tt.got, tt.wantID, tt.wantBand, tt.wantSeverity, tt.wantLeft)
		}
	}
}

func TestSLAMonitorBreachesForbidden(t *testing.T) {
	t.Parallel()

	f := newSLAFixture(t)
	for _, actor := range []domain.Actor{intakeClerk, financeOfficer} {
		if _, err := f.monitor.Breaches(context.Background(), actor); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("Breaches(%s) error = %v, want ErrForbidden", actor.Role, err)
		}
	}
}

func TestSLAMonitorEscalate(t *testing.T) {
	t.Parallel()

	f := newSLAFixture(t)
	ctx := context.Background()

	escalated, err := f.monitor.Escalate(ctx)
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalated)
	}

	sent := f.notifier.notifications()
	if len(sent) != 2 {
		t.Fatalf("notifications = %+v, want holder and team lead", sent)
	}
	recipients := map[string]bool{}
	for _, n := range sent {
		if n.Kind != domain.NotificationSLABreach || n.Item.ID != "late" || n.Item.Kind != domain.ItemKindBatch {
			t.Fatalf("notification = %+v, want SLA_BREACH for batch late", n)
		}
		recipients[n.Recipient] = true
	}
	if !recipients["h1"] || !recipients["lead-1"] {
		t.Fatalf("recipients = %v, want h1 and lead-1", recipients)
	}

	if escalated, _ := f.monitor.Escalate(ctx); escalated != 0 {
		t.Fatalf("second escalation on the same day = %d, want 0", escalated)
	}
	if got := len(f.notifier.notifications()); got != 2 {
		t.Fatalf("notifications after repeat = %d, want 2", got)
	}

	f.clock = f.clock.Add(24 * time.Hour)
	if escalated, _ := f.monitor.Escalate(ctx); escalated != 1 {
		t.Fatalf("escalation on the next day = %d, want 1", escalated)
	}
}

func TestSLAMonitorEscalateSurvivesNotifierFailure(t *testing.T) {
	t.Parallel()

	f := newSLAFixture(t)
	f.notifier.notifyFn = func(context.Context, domain.Notification) error { return errors.New("broker down") }

	escalated, err := f.monitor.Escalate(context.Background())
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalated)
	}
}

func TestSweeperEscalatesOverdueBatches(t *testing.T) {
	t.Parallel()

	f := newSLAFixture(t)
	sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, nil, time.Minute, 10, f.metrics, zap.NewNop())
	sweeper.SetEscalator(f.monitor)

	report, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if report.Escalated != 1 {
		t.Fatalf("escalated = %d, want 1", report.Escalated)
	}
}
