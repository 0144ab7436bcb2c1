package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/lease"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweeperSweepOnceClosesPaidBatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("b%d", i)
		f.seedBatch(t, id, domain.BatchStatusPaymentExecuted)
		f.seedDocuments(t, id, "h1", domain.DocumentStateTreated)
		if i%2 == 0 {
			f.seedExecutedPayment(t, id, "po-"+id)
		}
	}
	f.seedBatch(t, "other", domain.BatchStatusToScan)

	sweeper, err := NewSweeper(f.store.Batches(), f.reconciler, nil, time.Minute, 2, f.metrics, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	report, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if report.Scanned != 5 || report.Changed != 3 || report.Failed != 0 {
		t.Fatalf("report = %+v, want scanned=5 changed=3 failed=0", report)
	}
	for _, id := range []string{"b0", "b2", "b4"} {
		if got := f.batchStatus(t, id); got != domain.BatchStatusClosed {
			t.Fatalf("%s status = %s, want CLOSED", id, got)
		}
	}
	if got := f.batchStatus(t, "b1"); got != domain.BatchStatusPaymentExecuted {
		t.Fatalf("b1 status = %s, want PAYMENT_EXECUTED", got)
	}
}

func TestSweeperFailuresDoNotAbortSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.seedBatch(t, id, domain.BatchStatusProcessed)
	}

	var calls atomic.Int32
	reconciler := &fakeReconciler{
		reconcileFn: func(ctx context.Context, batchID string) (*ReconcileResult, error) {
			calls.Add(1)
			switch batchID {
			case "a":
				return nil, &domain.TransitionError{From: domain.BatchStatusProcessed, To: domain.BatchStatusClosed, Reason: domain.ReasonPrecondition}
			case "b":
				return nil, errors.New("database unavailable")
			}
			return &ReconcileResult{BatchID: batchID, Changed: true, Status: domain.BatchStatusClosed, Rule: RulePaymentExecuted}, nil
		},
	}

	core, logs := observer.New(zapcore.DebugLevel)
	sweeper, err := NewSweeper(f.store.Batches(), reconciler, nil, time.Minute, 10, nil, zap.New(core))
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	report, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("reconcile calls = %d, want 3", calls.Load())
	}
	if report.Scanned != 3 || report.Changed != 1 || report.Failed != 2 {
		t.Fatalf("report = %+v, want scanned=3 changed=1 failed=2", report)
	}

	failures := logs.FilterMessage("failed to reconcile batch during sweep").All()
	if len(failures) != 2 {
		t.Fatalf("failure logs = %d, want 2", len(failures))
	}
	levels := map[zapcore.Level]int{}
	for _, entry := range failures {
		levels[entry.Level]++
	}
	if levels[zapcore.WarnLevel] != 1 || levels[zapcore.ErrorLevel] != 1 {
		t.Fatalf("failure levels = %v, want one warn and one error", levels)
	}
}

func TestSweeperSkipsWhenSweepInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "b1", domain.BatchStatusProcessed)

	entered := make(chan struct{})
	release := make(chan struct{})
	reconciler := &fakeReconciler{
		reconcileFn: func(ctx context.Context, batchID string) (*ReconcileResult, error) {
			close(entered)
			<-release
			return &ReconcileResult{BatchID: batchID}, nil
		},
	}

	sweeper, _ := NewSweeper(f.store.Batches(), reconciler, nil, time.Minute, 10, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := sweeper.SweepOnce(context.Background())
		done <- err
	}()
	<-entered

	if _, err := sweeper.SweepOnce(context.Background()); !errors.Is(err, ErrSweepRunning) {
		t.Fatalf("overlapping SweepOnce() error = %v, want ErrSweepRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first SweepOnce() error = %v", err)
	}
}

func TestSweeperSkipsWithoutLease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "b1", domain.BatchStatusProcessed)

	reconciler := &fakeReconciler{
		reconcileFn: func(ctx context.Context, batchID string) (*ReconcileResult, error) {
			t.Fatal("reconcile must not run without the lease")
			return nil, nil
		},
	}
	leaser := &fakeLeaser{
		acquireFn: func(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error) {
			if name != sweepLeaseName {
				t.Fatalf("lease name = %q, want %q", name, sweepLeaseName)
			}
			return nil, false, nil
		},
	}

	sweeper, _ := NewSweeper(f.store.Batches(), reconciler, leaser, time.Minute, 10, nil, zap.NewNop())
	report, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("scanned = %d, want 0", report.Scanned)
	}
}

func TestSweeperReleasesLease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var released atomic.Bool
	leaser := &fakeLeaser{
		acquireFn: func(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error) {
			if ttl <= time.Minute {
				t.Fatalf("lease ttl = %s, want longer than the 1m interval", ttl)
			}
			return func(context.Context) error {
				released.Store(true)
				return nil
			}, true, nil
		},
	}

	sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, leaser, time.Minute, 10, nil, zap.NewNop())
	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if !released.Load() {
		t.Fatal("lease should be released after the sweep")
	}
}

func TestSweeperLeaseErrorFailsSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	leaser := &fakeLeaser{
		acquireFn: func(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error) {
			return nil, false, errors.New("redis down")
		},
	}

	sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, leaser, time.Minute, 10, nil, zap.NewNop())
	if _, err := sweeper.SweepOnce(context.Background()); err == nil {
		t.Fatal("SweepOnce() should fail when the lease cannot be checked")
	}
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "b1", domain.BatchStatusProcessed)
	f.seedDocuments(t, "b1", "h1", domain.DocumentStateTreated)
	f.seedExecutedPayment(t, "b1", "po-1")

	sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, nil, 10*time.Millisecond, 10, nil, zap.NewNop())
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sweeper.Start(context.Background()); !errors.Is(err, ErrSweepRunning) {
		t.Fatalf("second Start() error = %v, want ErrSweepRunning", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.batchStatus(t, "b1") != domain.BatchStatusClosed {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not close the batch in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sweeper.Stop()
	sweeper.Stop()

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	sweeper.Stop()
}

func TestSweeperRestartsAfterParentCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, nil, 10*time.Millisecond, 10, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := sweeper.Start(context.Background())
		if err == nil {
			break
		}
		if !errors.Is(err, ErrSweepRunning) {
			t.Fatalf("Start() error = %v, want nil or ErrSweepRunning", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper still reports running after its parent context was cancelled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sweeper.Stop()
}

type fakeEscalator struct {
	escalateFn func(ctx context.Context) (int, error)
}

func (f *fakeEscalator) Escalate(ctx context.Context) (int, error) {
	return f.escalateFn(ctx)
}

func TestSweeperEscalationStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		escalateFn    func(ctx context.Context) (int, error)
		wantEscalated int
		wantWarn      bool
	}{
		{
			name:          "escalated breaches are reported",
			escalateFn:    func(context.Context) (int, error) { return 2, nil },
			wantEscalated: 2,
		},
		{
			name:       "escalation error does not fail the sweep",
			escalateFn: func(context.Context) (int, error) { return 0, errors.New("notifier down") },
			wantWarn:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			core, logs := observer.New(zapcore.DebugLevel)
			sweeper, _ := NewSweeper(f.store.Batches(), f.reconciler, nil, time.Minute, 10, nil, zap.New(core))
			sweeper.SetEscalator(&fakeEscalator{escalateFn: tt.escalateFn})

			report, err := sweeper.SweepOnce(context.Background())
			if err != nil {
				t.Fatalf("SweepOnce() error = %v", err)
			}
			if report.Escalated != tt.wantEscalated {
				t.Fatalf("escalated = %d, want %d", report.Escalated, tt.wantEscalated)
			}
			warned := logs.FilterMessage("failed to escalate SLA breaches").Len() > 0
			if warned != tt.wantWarn {
				t.Fatalf("escalation warning logged = %v, want %v", warned, tt.wantWarn)
			}
		})
	}
}
