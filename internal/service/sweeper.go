package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/lease"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepLimit    = 100
	sweepLeaseName       = "reconcile-sweep"

	// The lease outlives one interval so a slow sweep keeps it until release.
	sweepLeaseIntervals = 3
)

// ErrSweepRunning is returned by Start when the sweeper is already running.
var ErrSweepRunning = errors.New("sweeper already running")

// SweepReport summarises one sweep.
type SweepReport struct {
	Scanned   int
	Changed   int
	Failed    int
	Escalated int
}

// SLAEscalator raises overdue batches after each sweep.
type SLAEscalator interface {
	Escalate(ctx context.Context) (int, error)
}

// Sweeper periodically reconciles batches waiting on payment facts. Sweeps
// never overlap: a tick that fires while one is running is skipped.
type Sweeper struct {
	batches    repository.BatchRepository
	reconciler BatchReconciler
	escalator  SLAEscalator
	leaser     lease.Leaser
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	limit      int

	running atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	wg         sync.WaitGroup
}

// NewSweeper builds a sweeper. leaser may be nil when a single instance runs.
func NewSweeper(
	batches repository.BatchRepository,
	reconciler BatchReconciler,
	leaser lease.Leaser,
	interval time.Duration,
	limit int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Sweeper, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		batches:    batches,
		reconciler: reconciler,
		leaser:     leaser,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		limit:      limit,
	}, nil
}

// SetEscalator adds an SLA escalation step to every sweep that holds the lease.
func (s *Sweeper) SetEscalator(escalator SLAEscalator) {
	s.escalator = escalator
}

// Start launches the sweep loop in the background. Call Stop to end it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSweepRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	generation := s.generation

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx)
		s.finish(generation)
	}()
	return nil
}

// finish forgets the loop's cancel func once the loop ended on its own, so
// Start works again after the parent context was cancelled.
func (s *Sweeper) finish(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a sweep on its own goroutine unless one is still running.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.IncSweepSkipped("overlap")
		s.logger.Debug("sweep still running, skipping tick")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if _, err := s.sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reconcile sweep failed", zap.Error(err))
		}
	}()
}

// SweepOnce runs a single sweep now. It returns ErrSweepRunning when another
// sweep is in flight.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepRunning
	}
	defer s.running.Store(false)
	return s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	if s.leaser != nil {
		release, acquired, err := s.leaser.TryAcquire(ctx, sweepLeaseName, s.leaseTTL())
		if err != nil {
			return report, fmt.Errorf("failed to acquire sweep lease: %w", err)
		}
		if !acquired {
			s.metrics.IncSweepSkipped("lease")
			return report, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lease", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	defer func() { s.metrics.ObserveSweepDuration(time.Since(start)) }()

	afterID := ""
	for {
		ids, err := s.batches.ListIDsByStatus(ctx, sweepStatuses, afterID, s.limit)
		if err != nil {
			return report, fmt.Errorf("failed to list batches for sweep: %w", err)
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Scanned++

			result, err := s.reconciler.Reconcile(ctx, id)
			if err != nil {
				report.Failed++
				level := s.logger.Error
				if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrStaleState) {
					level = s.logger.Warn
				}
				level("failed to reconcile batch during sweep",
					zap.String("batchId", id),
					zap.Error(err),
				)
				continue
			}
			if result.Changed {
				report.Changed++
			}
		}

		if len(ids) < s.limit {
			break
		}
		afterID = ids[len(ids)-1]
	}

	if s.escalator != nil {
		escalated, err := s.escalator.Escalate(ctx)
		if err != nil {
			s.logger.Warn("failed to escalate SLA breaches", zap.Error(err))
		}
		report.Escalated = escalated
	}

	if report.Scanned > 0 || report.Escalated > 0 {
		s.logger.Info("reconcile sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("changed", report.Changed),
			zap.Int("failed", report.Failed),
			zap.Int("escalated", report.Escalated),
		)
	}
	return report, nil
}

func (s *Sweeper) leaseTTL() time.Duration {
	return s.interval * sweepLeaseIntervals
}
