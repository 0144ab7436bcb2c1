package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"github.com/kursadbilgin/bordereau-flow/internal/sla"
	"github.com/kursadbilgin/bordereau-flow/internal/workflow"
	"go.uber.org/zap"
)

const maxDocumentsPerRequest = 1000

// CreateBatchInput is the intake data for a new batch.
type CreateBatchInput struct {
	ClientReference      string
	ReceptionDate        *time.Time
	ContractualDelayDays *int
}

// BatchView is a batch with its documents, payment facts and SLA position.
type BatchView struct {
	Batch        domain.Batch
	Documents    []domain.Document
	PaymentOrder *domain.PaymentOrder
	SLA          sla.Result
	Next         []domain.BatchStatus
}

// BatchHistory lists the audit trail of a batch.
type BatchHistory struct {
	Transitions []domain.TransitionLogEntry
	Assignments []domain.AssignmentRecord
}

// BatchService covers batch intake, queries and the payment facts the
// reconciler observes.
type BatchService struct {
	batches     repository.BatchRepository
	documents   repository.DocumentRepository
	assignments repository.AssignmentRepository
	payments    repository.PaymentOrderRepository
	reconciler  BatchReconciler
	logger      *zap.Logger
	now         func() time.Time
}

func NewBatchService(
	batches repository.BatchRepository,
	documents repository.DocumentRepository,
	assignments repository.AssignmentRepository,
	payments repository.PaymentOrderRepository,
	reconciler BatchReconciler,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil || documents == nil || assignments == nil || payments == nil {
		return nil, fmt.Errorf("batch, document, assignment and payment repositories are required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches:     batches,
		documents:   documents,
		assignments: assignments,
		payments:    payments,
		reconciler:  reconciler,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *BatchService) Create(ctx context.Context, in CreateBatchInput, actor domain.Actor) (*domain.Batch, error) {
	if actor.Role != domain.RoleIntakeClerk && actor.Role != domain.RoleAdministrator {
		return nil, fmt.Errorf("%w: role %s cannot register batches", domain.ErrForbidden, actor.Role)
	}

	now := s.now().UTC()
	batch := &domain.Batch{
		ID:                   uuid.NewString(),
		ClientReference:      strings.TrimSpace(in.ClientReference),
		ReceptionDate:        in.ReceptionDate,
		ContractualDelayDays: in.ContractualDelayDays,
		Status:               workflow.InitialStatus,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("batch registered",
		zap.String("batchId", batch.ID),
		zap.String("clientReference", batch.ClientReference),
	)
	return batch, nil
}

// AddDocuments attaches count new UNASSIGNED documents to a batch.
func (s *BatchService) AddDocuments(ctx context.Context, batchID string, count int, actor domain.Actor) ([]domain.Document, error) {
	switch actor.Role {
	case domain.RoleIntakeClerk, domain.RoleScanOperator, domain.RoleAdministrator:
	default:
		return nil, fmt.Errorf("%w: role %s cannot add documents", domain.ErrForbidden, actor.Role)
	}
	if count <= 0 || count > maxDocumentsPerRequest {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", domain.ErrValidation, maxDocumentsPerRequest)
	}

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Archived || batch.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: batch %s is %s", domain.ErrConflict, batch.ID, batch.Status)
	}

	now := s.now().UTC()
	docs := make([]domain.Document, 0, count)
	for i := 0; i < count; i++ {
		doc := domain.Document{
			ID:        uuid.NewString(),
			BatchID:   batch.ID,
			State:     domain.DocumentStateUnassigned,
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		}
		doc.UpdatedAt = doc.CreatedAt
		if err := s.documents.Create(ctx, &doc); err != nil {
			return docs, fmt.Errorf("failed to create document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *BatchService) Get(ctx context.Context, batchID string) (*BatchView, error) {
	snapshot, err := s.batches.Snapshot(ctx, batchID, repository.SnapshotOptions{IncludeDocuments: true, IncludePayment: true})
	if err != nil {
		return nil, err
	}

	return &BatchView{
		Batch:        snapshot.Batch,
		Documents:    snapshot.Documents,
		PaymentOrder: snapshot.PaymentOrder,
		SLA:          sla.Compute(snapshot.Batch.ReceptionDate, snapshot.Batch.ContractualDelayDays, s.now()),
		Next:         workflow.Next(snapshot.Batch.Status),
	}, nil
}

// SLA computes the deadline position of a batch at the current time.
func (s *BatchService) SLA(ctx context.Context, batchID string) (sla.Result, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return sla.Result{}, err
	}
	return sla.Compute(batch.ReceptionDate, batch.ContractualDelayDays, s.now()), nil
}

func (s *BatchService) History(ctx context.Context, batchID string) (*BatchHistory, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}

	transitions, err := s.batches.ListTransitions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	assignments, err := s.assignments.ListByItem(ctx, domain.ItemRef{Kind: domain.ItemKindBatch, ID: batchID})
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	docs, err := s.documents.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	for _, d := range docs {
		records, err := s.assignments.ListByItem(ctx, domain.ItemRef{Kind: domain.ItemKindDocument, ID: d.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to load document assignments: %w", err)
		}
		assignments = append(assignments, records...)
	}

	return &BatchHistory{Transitions: transitions, Assignments: assignments}, nil
}

// Archive hides a terminal batch from sweeps and workloads. Administrators only.
func (s *BatchService) Archive(ctx context.Context, batchID string, actor domain.Actor) error {
	if actor.Role != domain.RoleAdministrator {
		return fmt.Errorf("%w: only administrators can archive batches", domain.ErrForbidden)
	}
	if err := s.batches.Archive(ctx, batchID, s.now().UTC()); err != nil {
		return err
	}

	observability.WithContextLogger(s.logger, ctx).Info("batch archived", zap.String("batchId", batchID))
	return nil
}

// RegisterPaymentOrder links a payment order to a batch.
func (s *BatchService) RegisterPaymentOrder(ctx context.Context, batchID string, reference string, actor domain.Actor) (*domain.PaymentOrder, error) {
	if actor.Role != domain.RoleFinanceOfficer && actor.Role != domain.RoleAdministrator {
		return nil, fmt.Errorf("%w: role %s cannot register payment orders", domain.ErrForbidden, actor.Role)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: payment order reference is required", domain.ErrValidation)
	}

	order := &domain.PaymentOrder{Reference: reference, BatchID: batchID, CreatedAt: s.now().UTC()}
	if err := s.payments.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// PaymentExecutedResult is the recorded payment fact and the reconciliation
// it triggered.
type PaymentExecutedResult struct {
	PaymentOrder *domain.PaymentOrder
	Reconcile    *ReconcileResult
	ReconcileErr error
}

// MarkPaymentExecuted records the execution fact and reconciles the batch.
func (s *BatchService) MarkPaymentExecuted(ctx context.Context, reference string, actor domain.Actor) (*PaymentExecutedResult, error) {
	if actor.Role != domain.RoleFinanceOfficer && actor.Role != domain.RoleAdministrator {
		return nil, fmt.Errorf("%w: role %s cannot record payment execution", domain.ErrForbidden, actor.Role)
	}

	order, err := s.payments.MarkExecuted(ctx, reference, s.now().UTC())
	if err != nil {
		return nil, err
	}

	result := &PaymentExecutedResult{PaymentOrder: order}
	result.Reconcile, result.ReconcileErr = s.reconciler.Reconcile(ctx, order.BatchID)
	if result.ReconcileErr != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("reconcile after payment execution failed",
			zap.String("batchId", order.BatchID),
			zap.Error(result.ReconcileErr),
		)
	}
	return result, nil
}
