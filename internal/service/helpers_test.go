package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/lease"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/provider"
	"github.com/kursadbilgin/bordereau-flow/internal/queue"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"go.uber.org/zap"
)

var (
	teamLead       = domain.Actor{UserID: "lead-1", Role: domain.RoleTeamLead}
	admin          = domain.Actor{UserID: "admin-1", Role: domain.RoleAdministrator}
	financeOfficer = domain.Actor{UserID: "fin-1", Role: domain.RoleFinanceOfficer}
	intakeClerk    = domain.Actor{UserID: "clerk-1", Role: domain.RoleIntakeClerk}
)

type fixture struct {
	store      *repository.MemoryStore
	metrics    *observability.Metrics
	engine     *BatchEngine
	reconciler *Reconciler
	balancer   *Balancer
	notifier   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	engine, err := NewBatchEngine(store.Batches(), 3, metrics, logger)
	if err != nil {
		t.Fatalf("NewBatchEngine() error = %v", err)
	}
	reconciler, err := NewReconciler(engine, metrics, logger)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	notifier := &fakeNotifier{}
	balancer, err := NewBalancer(store.Batches(), store.Documents(), store.Users(), reconciler, notifier, domain.DefaultCapacity, metrics, logger)
	if err != nil {
		t.Fatalf("NewBalancer() error = %v", err)
	}

	return &fixture{
		store:      store,
		metrics:    metrics,
		engine:     engine,
		reconciler: reconciler,
		balancer:   balancer,
		notifier:   notifier,
	}
}

func (f *fixture) seedBatch(t *testing.T, id string, status domain.BatchStatus) domain.Batch {
	t.Helper()

	b := domain.Batch{ID: id, ClientReference: "client-" + id, Status: status}
	if err := f.store.Batches().Create(context.Background(), &b); err != nil {
		t.Fatalf("create batch %s: %v", id, err)
	}
	return b
}

// seedDocuments creates one document per state. Non-pool states are held by
// handlerID.
func (f *fixture) seedDocuments(t *testing.T, batchID string, handlerID string, states ...domain.DocumentState) []domain.Document {
	t.Helper()

	base := time.Unix(1_700_000_000, 0).UTC()
	docs := make([]domain.Document, 0, len(states))
	for i, state := range states {
		d := domain.Document{
			ID:        fmt.Sprintf("%s-doc-%02d", batchID, i),
			BatchID:   batchID,
			State:     state,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if state != domain.DocumentStateUnassigned && handlerID != "" {
			h := handlerID
			d.AssignedHandlerID = &h
		}
		if err := f.store.Documents().Create(context.Background(), &d); err != nil {
			t.Fatalf("create document: %v", err)
		}
		docs = append(docs, d)
	}
	return docs
}

func (f *fixture) seedHandler(t *testing.T, id string, role domain.Role, capacity *int) {
	t.Helper()

	h := domain.Handler{ID: id, FullName: "Handler " + id, Role: role, Active: true, Capacity: capacity}
	if err := f.store.Users().Upsert(context.Background(), &h); err != nil {
		t.Fatalf("upsert handler %s: %v", id, err)
	}
}

func (f *fixture) seedExecutedPayment(t *testing.T, batchID string, reference string) {
	t.Helper()

	ctx := context.Background()
	if err := f.store.PaymentOrders().Create(ctx, &domain.PaymentOrder{Reference: reference, BatchID: batchID}); err != nil {
		t.Fatalf("create payment order: %v", err)
	}
	if _, err := f.store.PaymentOrders().MarkExecuted(ctx, reference, time.Now().UTC()); err != nil {
		t.Fatalf("mark payment executed: %v", err)
	}
}

func (f *fixture) batchStatus(t *testing.T, id string) domain.BatchStatus {
	t.Helper()

	b, err := f.store.Batches().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get batch %s: %v", id, err)
	}
	return b.Status
}

func ptr[T any](v T) *T { return &v }

type fakeNotifier struct {
	mu       sync.Mutex
	notifyFn func(ctx context.Context, n domain.Notification) error
	sent     []domain.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n domain.Notification) error {
	f.mu.Lock()
	f.sent = append(f.sent, n)
	f.mu.Unlock()

	if f.notifyFn != nil {
		return f.notifyFn(ctx, n)
	}
	return nil
}

func (f *fakeNotifier) notifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.sent...)
}

type fakeReconciler struct {
	reconcileFn func(ctx context.Context, batchID string) (*ReconcileResult, error)
}

func (f *fakeReconciler) Reconcile(ctx context.Context, batchID string) (*ReconcileResult, error) {
	if f.reconcileFn != nil {
		return f.reconcileFn(ctx, batchID)
	}
	return &ReconcileResult{BatchID: batchID, Rule: RuleNone}, nil
}

// racingBatchRepo runs beforeApply once, right before the first conditional
// write, to simulate a concurrent writer.
type racingBatchRepo struct {
	repository.BatchRepository
	once        sync.Once
	beforeApply func()
}

func (r *racingBatchRepo) ApplyStatusChange(ctx context.Context, change domain.StatusChange) (*domain.Batch, error) {
	r.once.Do(r.beforeApply)
	return r.BatchRepository.ApplyStatusChange(ctx, change)
}

type fakeLeaser struct {
	acquireFn func(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error)
}

func (f *fakeLeaser) TryAcquire(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error) {
	return f.acquireFn(ctx, name, ttl)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeProvider struct {
	sendFn func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
	return f.sendFn(ctx, n)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, scope string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}
