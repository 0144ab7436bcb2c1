package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"go.uber.org/zap"
)

// ReconcileRule names the aggregation rule that fired.
type ReconcileRule string

const (
	RuleNone                 ReconcileRule = "none"
	RuleAllDocumentsAssigned ReconcileRule = "all_documents_assigned"
	RuleAllDocumentsTreated  ReconcileRule = "all_documents_treated"
	RulePaymentExecuted      ReconcileRule = "payment_executed"
)

// ReconcileResult reports what a reconciliation did to a batch.
type ReconcileResult struct {
	BatchID string
	Changed bool
	Status  domain.BatchStatus
	Rule    ReconcileRule
}

// BatchReconciler derives batch status from document and payment facts.
type BatchReconciler interface {
	Reconcile(ctx context.Context, batchID string) (*ReconcileResult, error)
}

// Reconciler applies the first matching aggregation rule as the SYSTEM actor.
type Reconciler struct {
	engine  *BatchEngine
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewReconciler(engine *BatchEngine, metrics *observability.Metrics, logger *zap.Logger) (*Reconciler, error) {
	if engine == nil {
		return nil, fmt.Errorf("batch engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{engine: engine, metrics: metrics, logger: logger}, nil
}

// Reconcile is idempotent: once a rule has fired the batch no longer matches it.
// A matching rule whose transition fails its precondition is returned as error.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string) (*ReconcileResult, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	rule := RuleNone
	batch, changed, err := r.engine.apply(ctx, batchID, domain.SystemActor, nil, true,
		func(snapshot *domain.BatchSnapshot) (domain.BatchStatus, bool) {
			target, matched, ok := deriveStatus(snapshot)
			rule = matched
			return target, ok
		},
	)
	if err != nil {
		r.metrics.IncReconcile("failed")
		return nil, err
	}

	result := &ReconcileResult{
		BatchID: batchID,
		Changed: changed,
		Status:  batch.Status,
		Rule:    RuleNone,
	}
	if changed {
		result.Rule = rule
		r.engine.metrics.IncTransition(batch.Status.String(), "applied")
		observability.WithContextLogger(r.logger, ctx).Info("batch reconciled",
			zap.String("batchId", batchID),
			zap.String("status", batch.Status.String()),
			zap.String("rule", string(rule)),
		)
	}
	r.metrics.IncReconcile(string(result.Rule))

	return result, nil
}

// deriveStatus evaluates the aggregation rules in order; only the first match
// counts.
func deriveStatus(snapshot *domain.BatchSnapshot) (domain.BatchStatus, ReconcileRule, bool) {
	if snapshot == nil || snapshot.Batch.Archived {
		return "", RuleNone, false
	}

	docs := snapshot.Documents
	switch snapshot.Batch.Status {
	case domain.BatchStatusToAssign:
		if len(docs) > 0 && all(docs, func(d domain.Document) bool { return d.IsAssigned() }) {
			return domain.BatchStatusInProgress, RuleAllDocumentsAssigned, true
		}
	case domain.BatchStatusInProgress:
		if len(docs) > 0 && all(docs, func(d domain.Document) bool { return d.State.IsTerminal() }) {
			return domain.BatchStatusProcessed, RuleAllDocumentsTreated, true
		}
	case domain.BatchStatusProcessed, domain.BatchStatusPaymentInProgress, domain.BatchStatusPaymentExecuted:
		if snapshot.PaymentExecuted() {
			return domain.BatchStatusClosed, RulePaymentExecuted, true
		}
	}
	return "", RuleNone, false
}

func all(docs []domain.Document, pred func(domain.Document) bool) bool {
	for _, d := range docs {
		if !pred(d) {
			return false
		}
	}
	return true
}

// sweepStatuses are the statuses the periodic sweep reconciles.
var sweepStatuses = []domain.BatchStatus{
	domain.BatchStatusProcessed,
	domain.BatchStatusPaymentInProgress,
	domain.BatchStatusPaymentExecuted,
}
