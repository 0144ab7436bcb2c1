package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"github.com/kursadbilgin/bordereau-flow/internal/workflow"
	"go.uber.org/zap"
)

const (
	defaultTransitionMaxAttempts = 3
	maxBulkItems                 = 500
)

// TransitionRequest asks for one batch status change. When ExpectedStatus is
// set the change only applies if the batch is still in that status.
type TransitionRequest struct {
	BatchID        string
	Target         domain.BatchStatus
	Actor          domain.Actor
	ExpectedStatus *domain.BatchStatus
}

// ItemOutcome is the per-item result of a bulk operation.
type ItemOutcome struct {
	ID     string
	Status string
	Err    error
}

func (o ItemOutcome) OK() bool { return o.Err == nil }

// decideFunc picks the target status for a snapshot. ok=false means no change.
type decideFunc func(snapshot *domain.BatchSnapshot) (target domain.BatchStatus, ok bool)

// BatchEngine applies status transitions with compare-and-swap semantics.
type BatchEngine struct {
	batches     repository.BatchRepository
	maxAttempts int
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewBatchEngine(
	batches repository.BatchRepository,
	maxAttempts int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*BatchEngine, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultTransitionMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchEngine{
		batches:     batches,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (e *BatchEngine) Transition(ctx context.Context, req TransitionRequest) (*domain.Batch, error) {
	if strings.TrimSpace(req.BatchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	if !req.Target.IsValid() {
		return nil, fmt.Errorf("%w: invalid target status %q", domain.ErrValidation, req.Target)
	}
	if req.ExpectedStatus != nil && !req.ExpectedStatus.IsValid() {
		return nil, fmt.Errorf("%w: invalid expected status %q", domain.ErrValidation, *req.ExpectedStatus)
	}

	target := req.Target
	batch, _, err := e.apply(ctx, req.BatchID, req.Actor, req.ExpectedStatus, target == domain.BatchStatusClosed,
		func(*domain.BatchSnapshot) (domain.BatchStatus, bool) { return target, true },
	)
	e.recordOutcome(target, err)
	if err != nil {
		return nil, err
	}

	observability.WithContextLogger(e.logger, ctx).Info("batch transitioned",
		zap.String("batchId", batch.ID),
		zap.String("status", batch.Status.String()),
		zap.String("actorRole", req.Actor.Role.String()),
	)
	return batch, nil
}

// BulkTransition applies each request independently and reports one outcome
// per request, in order.
func (e *BatchEngine) BulkTransition(ctx context.Context, reqs []TransitionRequest) ([]ItemOutcome, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one transition is required", domain.ErrValidation)
	}
	if len(reqs) > maxBulkItems {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkItems)
	}

	outcomes := make([]ItemOutcome, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, ItemOutcome{ID: req.BatchID, Err: err})
			continue
		}
		batch, err := e.Transition(ctx, req)
		outcome := ItemOutcome{ID: req.BatchID, Err: err}
		if batch != nil {
			outcome.Status = batch.Status.String()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// apply runs the read-evaluate-write cycle. A lost race is retried up to
// maxAttempts unless the caller pinned the expected status.
func (e *BatchEngine) apply(
	ctx context.Context,
	batchID string,
	actor domain.Actor,
	pinned *domain.BatchStatus,
	needFacts bool,
	decide decideFunc,
) (*domain.Batch, bool, error) {
	opts := repository.SnapshotOptions{IncludeDocuments: needFacts, IncludePayment: needFacts}

	for attempt := 1; ; attempt++ {
		snapshot, err := e.batches.Snapshot(ctx, batchID, opts)
		if err != nil {
			return nil, false, err
		}

		if pinned != nil && snapshot.Batch.Status != *pinned {
			return nil, false, fmt.Errorf("%w: batch %s is %s, expected %s",
				domain.ErrStaleState, batchID, snapshot.Batch.Status, *pinned)
		}

		target, ok := decide(snapshot)
		if !ok {
			return &snapshot.Batch, false, nil
		}

		change, err := workflow.Plan(snapshot, target, actor, e.now())
		if err != nil {
			return nil, false, err
		}

		updated, err := e.batches.ApplyStatusChange(ctx, change)
		if err == nil {
			return updated, true, nil
		}
		if !errors.Is(err, domain.ErrStaleState) {
			return nil, false, err
		}
		if pinned != nil || attempt >= e.maxAttempts {
			return nil, false, fmt.Errorf("%w: batch %s changed concurrently after %d attempt(s)",
				domain.ErrStaleState, batchID, attempt)
		}

		e.metrics.IncStaleRetry()
		observability.WithContextLogger(e.logger, ctx).Debug("transition lost a race, re-evaluating",
			zap.String("batchId", batchID),
			zap.Int("attempt", attempt),
		)
	}
}

func (e *BatchEngine) recordOutcome(target domain.BatchStatus, err error) {
	outcome := "applied"
	var transitionErr *domain.TransitionError
	switch {
	case err == nil:
	case errors.As(err, &transitionErr):
		outcome = string(transitionErr.Reason)
	case errors.Is(err, domain.ErrStaleState):
		outcome = "stale"
	default:
		outcome = "error"
	}
	e.metrics.IncTransition(target.String(), outcome)
}
