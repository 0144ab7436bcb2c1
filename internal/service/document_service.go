package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"go.uber.org/zap"
)

// DocumentUpdateResult is the mutated document and the reconciliation of its
// batch that followed.
type DocumentUpdateResult struct {
	Document     domain.Document
	Reconcile    *ReconcileResult
	ReconcileErr error
}

// DocumentService applies processing actions to documents.
type DocumentService struct {
	batches    repository.BatchRepository
	documents  repository.DocumentRepository
	reconciler BatchReconciler
	logger     *zap.Logger
	now        func() time.Time
}

func NewDocumentService(
	batches repository.BatchRepository,
	documents repository.DocumentRepository,
	reconciler BatchReconciler,
	logger *zap.Logger,
) (*DocumentService, error) {
	if batches == nil || documents == nil {
		return nil, fmt.Errorf("batch and document repositories are required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{batches: batches, documents: documents, reconciler: reconciler, logger: logger, now: time.Now}, nil
}

// UpdateState moves a held document along its processing path. Case handlers
// may only act on documents assigned to them.
func (s *DocumentService) UpdateState(ctx context.Context, documentID string, target domain.DocumentState, actor domain.Actor) (*DocumentUpdateResult, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: invalid document state %q", domain.ErrValidation, target)
	}

	switch actor.Role {
	case domain.RoleCaseHandler, domain.RoleTeamLead, domain.RoleAdministrator:
	default:
		return nil, fmt.Errorf("%w: role %s cannot process documents", domain.ErrForbidden, actor.Role)
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCaseHandler && (doc.AssignedHandlerID == nil || *doc.AssignedHandlerID != actor.UserID) {
		return nil, fmt.Errorf("%w: document %s is not assigned to %s", domain.ErrForbidden, doc.ID, actor.UserID)
	}
	if !doc.State.CanMoveTo(target) {
		return nil, fmt.Errorf("%w: document %s cannot move from %s to %s", domain.ErrConflict, doc.ID, doc.State, target)
	}
	if err := requireOpenBatch(ctx, s.batches, doc.BatchID); err != nil {
		return nil, err
	}

	updated, err := s.documents.UpdateState(ctx, domain.DocumentStateChange{
		DocumentID: doc.ID,
		From:       doc.State,
		To:         target,
		At:         s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log := observability.WithContextLogger(s.logger, ctx)
	log.Info("document state changed",
		zap.String("documentId", doc.ID),
		zap.String("batchId", doc.BatchID),
		zap.String("from", doc.State.String()),
		zap.String("to", target.String()),
	)

	result := &DocumentUpdateResult{Document: *updated}
	result.Reconcile, result.ReconcileErr = s.reconciler.Reconcile(ctx, doc.BatchID)
	if result.ReconcileErr != nil {
		log.Warn("reconcile after document update failed", zap.String("batchId", doc.BatchID), zap.Error(result.ReconcileErr))
	}
	return result, nil
}
