package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"go.uber.org/zap"
)

// AssignRequest assigns an item from the pool to a handler.
type AssignRequest struct {
	Item      domain.ItemRef
	HandlerID string
	Actor     domain.Actor
}

// AssignResult carries the audit record and the handler's workload after the
// write. Overload is advisory and never blocks an assignment.
type AssignResult struct {
	Record       domain.AssignmentRecord
	Workload     domain.Workload
	Emergency    bool
	Reconcile    *ReconcileResult
	ReconcileErr error
}

// Balancer owns item ownership changes and workload evaluation.
type Balancer struct {
	batches         repository.BatchRepository
	documents       repository.DocumentRepository
	users           repository.UserRepository
	reconciler      BatchReconciler
	notifier        Notifier
	defaultCapacity int
	metrics         *observability.Metrics
	logger          *zap.Logger
	now             func() time.Time
	newID           func() string
}

func NewBalancer(
	batches repository.BatchRepository,
	documents repository.DocumentRepository,
	users repository.UserRepository,
	reconciler BatchReconciler,
	notifier Notifier,
	defaultCapacity int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Balancer, error) {
	if batches == nil || documents == nil || users == nil {
		return nil, fmt.Errorf("batch, document and user repositories are required")
	}
	if defaultCapacity <= 0 {
		defaultCapacity = domain.DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Balancer{
		batches:         batches,
		documents:       documents,
		users:           users,
		reconciler:      reconciler,
		notifier:        notifier,
		defaultCapacity: defaultCapacity,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
		newID:           uuid.NewString,
	}, nil
}

// Workload recomputes the handler's active items on every call.
func (b *Balancer) Workload(ctx context.Context, handlerID string) (domain.Workload, error) {
	handler, err := b.users.GetByID(ctx, handlerID)
	if err != nil {
		return domain.Workload{}, err
	}
	return b.workloadOf(ctx, handler)
}

func (b *Balancer) workloadOf(ctx context.Context, handler *domain.Handler) (domain.Workload, error) {
	active, err := b.users.CountActiveItems(ctx, handler.ID)
	if err != nil {
		return domain.Workload{}, fmt.Errorf("failed to count active items: %w", err)
	}
	return domain.NewWorkload(handler.ID, active, b.capacityOf(handler)), nil
}

func (b *Balancer) capacityOf(h *domain.Handler) int {
	if h.Capacity != nil && *h.Capacity > 0 {
		return *h.Capacity
	}
	return b.defaultCapacity
}

func (b *Balancer) Assign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	if !req.Actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot assign work", domain.ErrForbidden, req.Actor.Role)
	}
	if err := req.Item.Validate(); err != nil {
		return nil, err
	}
	handler, err := b.resolveTarget(ctx, req.HandlerID)
	if err != nil {
		return nil, err
	}
	return b.transfer(ctx, transferRequest{item: req.Item, to: handler, actor: req.Actor})
}

// BulkAssign assigns every item to the same handler and reports one outcome
// per item; a failed item does not stop the others.
func (b *Balancer) BulkAssign(ctx context.Context, items []domain.ItemRef, handlerID string, actor domain.Actor) ([]ItemOutcome, error) {
	if !actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot assign work", domain.ErrForbidden, actor.Role)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	if len(items) > maxBulkItems {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkItems)
	}
	handler, err := b.resolveTarget(ctx, handlerID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ItemOutcome, 0, len(items))
	for _, item := range items {
		outcome := ItemOutcome{ID: item.ID}
		if err := item.Validate(); err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}

		result, err := b.transfer(ctx, transferRequest{item: item, to: handler, actor: actor})
		outcome.Err = err
		if result != nil {
			outcome.Status = "assigned"
			if result.Workload.Overloaded {
				outcome.Status = "assigned_overloaded"
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// AutoAssign picks the least utilised case handler that still has headroom.
// When every candidate is at or above capacity the least utilised one is used
// and the result is flagged as an emergency assignment.
func (b *Balancer) AutoAssign(ctx context.Context, item domain.ItemRef, actor domain.Actor) (*AssignResult, error) {
	if !actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot assign work", domain.ErrForbidden, actor.Role)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	handler, emergency, err := b.pickHandler(ctx)
	if err != nil {
		return nil, err
	}

	result, err := b.transfer(ctx, transferRequest{item: item, to: handler, actor: actor})
	if err != nil {
		return nil, err
	}
	result.Emergency = emergency
	if emergency {
		observability.WithContextLogger(b.logger, ctx).Warn("emergency assignment to overloaded handler",
			zap.String("handlerId", handler.ID),
			zap.String("item", item.String()),
		)
	}
	return result, nil
}

type candidate struct {
	handler  domain.Handler
	workload domain.Workload
}

func (b *Balancer) pickHandler(ctx context.Context) (*domain.Handler, bool, error) {
	handlers, err := b.users.ListAssignable(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list handlers: %w", err)
	}

	caseHandlers := make([]domain.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h.Role == domain.RoleCaseHandler {
			caseHandlers = append(caseHandlers, h)
		}
	}
	if len(caseHandlers) > 0 {
		handlers = caseHandlers
	}
	if len(handlers) == 0 {
		return nil, false, fmt.Errorf("%w: no active handler available", domain.ErrConflict)
	}

	candidates := make([]candidate, 0, len(handlers))
	for i := range handlers {
		w, err := b.workloadOf(ctx, &handlers[i])
		if err != nil {
			return nil, false, err
		}
		candidates = append(candidates, candidate{handler: handlers[i], workload: w})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].workload.UtilizationRate(), candidates[j].workload.UtilizationRate()
		if ri != rj {
			return ri < rj
		}
		if candidates[i].workload.Active != candidates[j].workload.Active {
			return candidates[i].workload.Active < candidates[j].workload.Active
		}
		return candidates[i].handler.ID < candidates[j].handler.ID
	})

	for i := range candidates {
		if candidates[i].workload.Active < candidates[i].workload.Capacity {
			return &candidates[i].handler, false, nil
		}
	}
	return &candidates[0].handler, true, nil
}

func (b *Balancer) resolveTarget(ctx context.Context, handlerID string) (*domain.Handler, error) {
	if strings.TrimSpace(handlerID) == "" {
		return nil, fmt.Errorf("%w: handler id is required", domain.ErrValidation)
	}
	handler, err := b.users.GetByID(ctx, handlerID)
	if err != nil {
		return nil, err
	}
	if !handler.Active {
		return nil, fmt.Errorf("%w: handler %s is inactive", domain.ErrValidation, handlerID)
	}
	if !handler.Role.CanReceiveWork() {
		return nil, fmt.Errorf("%w: role %s cannot receive work", domain.ErrValidation, handler.Role)
	}
	return handler, nil
}

// transferRequest describes an ownership change. from is only checked for
// reassignments, where it must name the current holder.
type transferRequest struct {
	item       domain.ItemRef
	to         *domain.Handler
	from       *string
	reason     *string
	reassign   bool
	actor      domain.Actor
	notifyKind domain.NotificationKind
}

func (b *Balancer) transfer(ctx context.Context, req transferRequest) (*AssignResult, error) {
	var (
		record  domain.AssignmentRecord
		batchID string
		err     error
	)

	switch req.item.Kind {
	case domain.ItemKindDocument:
		record, batchID, err = b.transferDocument(ctx, req)
	case domain.ItemKindBatch:
		record, err = b.transferBatch(ctx, req)
	default:
		err = fmt.Errorf("%w: invalid item kind %q", domain.ErrValidation, req.item.Kind)
	}
	if err != nil {
		return nil, err
	}

	result := &AssignResult{Record: record}
	workload, err := b.workloadOf(ctx, req.to)
	if err != nil {
		b.logger.Warn("failed to compute workload after assignment", zap.String("handlerId", req.to.ID), zap.Error(err))
	} else {
		result.Workload = workload
	}

	if req.reassign {
		b.metrics.IncReassignment(req.item.Kind.String())
	} else {
		b.metrics.IncAssignment(req.item.Kind.String(), result.Workload.Overloaded)
	}

	log := observability.WithContextLogger(b.logger, ctx)
	log.Info("item assigned",
		zap.String("item", req.item.String()),
		zap.String("handlerId", req.to.ID),
		zap.Bool("reassignment", req.reassign),
		zap.Int("active", result.Workload.Active),
		zap.Bool("overloaded", result.Workload.Overloaded),
	)
	if result.Workload.Overloaded {
		log.Warn("handler over capacity",
			zap.String("handlerId", req.to.ID),
			zap.Int("active", result.Workload.Active),
			zap.Int("capacity", result.Workload.Capacity),
		)
	}

	if batchID != "" && b.reconciler != nil {
		result.Reconcile, result.ReconcileErr = b.reconciler.Reconcile(ctx, batchID)
		if result.ReconcileErr != nil {
			log.Warn("reconcile after assignment failed", zap.String("batchId", batchID), zap.Error(result.ReconcileErr))
		}
	}

	kind := req.notifyKind
	if kind == "" {
		kind = domain.NotificationItemAssigned
	}
	b.notify(ctx, req.to.ID, kind, req.item, fmt.Sprintf("%s %s was assigned to you", strings.ToLower(req.item.Kind.String()), req.item.ID))

	return result, nil
}

func (b *Balancer) transferDocument(ctx context.Context, req transferRequest) (domain.AssignmentRecord, string, error) {
	doc, err := b.documents.GetByID(ctx, req.item.ID)
	if err != nil {
		return domain.AssignmentRecord{}, "", err
	}
	if !doc.State.IsReassignable() {
		return domain.AssignmentRecord{}, "", &domain.NotReassignableError{ItemID: doc.ID, State: doc.State}
	}
	if req.reassign && !sameHolder(doc.AssignedHandlerID, req.from) {
		return domain.AssignmentRecord{}, "", fmt.Errorf("%w: document %s is held by %s", domain.ErrConflict, doc.ID, holderName(doc.AssignedHandlerID))
	}
	if err := requireOpenBatch(ctx, b.batches, doc.BatchID); err != nil {
		return domain.AssignmentRecord{}, "", err
	}

	record := b.newRecord(req, doc.AssignedHandlerID)
	err = b.documents.Assign(ctx, domain.Assignment{
		Item:              req.item,
		ExpectedHandlerID: doc.AssignedHandlerID,
		HandlerID:         req.to.ID,
		Record:            record,
	})
	if err != nil {
		return domain.AssignmentRecord{}, "", err
	}
	return record, doc.BatchID, nil
}

// requireOpenBatch rejects work on documents whose batch is terminal or
// archived; nothing would ever move such a document on.
func requireOpenBatch(ctx context.Context, batches repository.BatchRepository, batchID string) error {
	batch, err := batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Archived || batch.Status.IsTerminal() {
		return fmt.Errorf("%w: batch %s is %s", domain.ErrConflict, batch.ID, batchState(batch))
	}
	return nil
}

func batchState(b *domain.Batch) string {
	if b.Archived {
		return "archived"
	}
	return b.Status.String()
}

func (b *Balancer) transferBatch(ctx context.Context, req transferRequest) (domain.AssignmentRecord, error) {
	batch, err := b.batches.GetByID(ctx, req.item.ID)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	if batch.Archived || batch.Status.IsTerminal() {
		return domain.AssignmentRecord{}, fmt.Errorf("%w: batch %s is %s", domain.ErrConflict, batch.ID, batchState(batch))
	}
	switch {
	case req.reassign && !sameHolder(batch.AssignedHandlerID, req.from):
		return domain.AssignmentRecord{}, fmt.Errorf("%w: batch %s is held by %s", domain.ErrConflict, batch.ID, holderName(batch.AssignedHandlerID))
	case !req.reassign && batch.AssignedHandlerID != nil && *batch.AssignedHandlerID != "":
		return domain.AssignmentRecord{}, fmt.Errorf("%w: batch %s is already assigned to %s", domain.ErrConflict, batch.ID, *batch.AssignedHandlerID)
	}

	record := b.newRecord(req, batch.AssignedHandlerID)
	err = b.batches.Assign(ctx, domain.Assignment{
		Item:              req.item,
		ExpectedHandlerID: batch.AssignedHandlerID,
		HandlerID:         req.to.ID,
		Record:            record,
	})
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	return record, nil
}

func (b *Balancer) newRecord(req transferRequest, current *string) domain.AssignmentRecord {
	var from *string
	if current != nil && *current != "" {
		holder := *current
		from = &holder
	}
	return domain.AssignmentRecord{
		ID:            b.newID(),
		Item:          req.item,
		FromHandlerID: from,
		ToHandlerID:   req.to.ID,
		Reason:        req.reason,
		Reassignment:  req.reassign,
		ActorID:       req.actor.UserID,
		CreatedAt:     b.now().UTC(),
	}
}

// notify never fails the caller; dispatch errors are logged and counted.
func (b *Balancer) notify(ctx context.Context, recipient string, kind domain.NotificationKind, item domain.ItemRef, message string) {
	if b.notifier == nil {
		return
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	notification := domain.Notification{
		ID:            b.newID(),
		Recipient:     recipient,
		Kind:          kind,
		Item:          item,
		Message:       message,
		CorrelationID: correlationID,
		CreatedAt:     b.now().UTC(),
	}
	if err := b.notifier.Notify(ctx, notification); err != nil {
		b.metrics.IncNotificationFailed(kind.String())
		observability.WithContextLogger(b.logger, ctx).Warn("failed to dispatch notification",
			zap.String("recipient", recipient),
			zap.String("kind", kind.String()),
			zap.String("item", item.String()),
			zap.Error(err),
		)
	}
}

func sameHolder(current *string, expected *string) bool {
	if current == nil || *current == "" {
		return expected == nil || *expected == ""
	}
	return expected != nil && *expected == *current
}

func holderName(h *string) string {
	if h == nil || *h == "" {
		return "nobody"
	}
	return *h
}
