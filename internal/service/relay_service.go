package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/provider"
	"github.com/kursadbilgin/bordereau-flow/internal/queue"
	"github.com/kursadbilgin/bordereau-flow/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minRelayConcurrency = 1
	relayRateScope      = "webhook"
)

// RelayService drains the notifications queue into an outbound provider.
// Transient provider failures are requeued once and then dead-lettered by
// the consumer; permanent failures are dead-lettered at once.
type RelayService struct {
	consumer    queue.Consumer
	provider    provider.Provider
	rateLimiter ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// NewRelayService builds the relay. rateLimiter may be nil.
func NewRelayService(
	consumer queue.Consumer,
	p provider.Provider,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RelayService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if concurrency < minRelayConcurrency {
		concurrency = minRelayConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RelayService{
		consumer:    consumer,
		provider:    p,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start runs concurrency consumers until ctx is cancelled.
func (s *RelayService) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("relay worker started", zap.Int("workerId", workerID))

			if err := s.consumer.Consume(groupCtx, queue.NotificationsQueue, s.processMessage); err != nil {
				s.logger.Error("relay worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			s.logger.Info("relay worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *RelayService) processMessage(ctx context.Context, msg queue.NotificationMessage) error {
	s.metrics.IncRelayInFlight()
	defer s.metrics.DecRelayInFlight()

	ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	log := observability.WithContextLogger(s.logger, ctx)

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, relayRateScope); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	start := s.now()
	resp, err := s.provider.Send(ctx, msg.Notification())
	if err == nil {
		s.metrics.IncRelayDelivery("sent")
		fields := []zap.Field{
			zap.String("notificationId", msg.NotificationID),
			zap.String("recipient", msg.Recipient),
			zap.Duration("duration", s.now().Sub(start)),
		}
		if resp != nil && resp.MessageID != "" {
			fields = append(fields, zap.String("providerMessageId", resp.MessageID))
		}
		log.Info("notification delivered", fields...)
		return nil
	}

	if provider.IsTransient(err) {
		s.metrics.IncRelayDelivery("transient_failure")
		return fmt.Errorf("notification %s delivery failed: %w", msg.NotificationID, err)
	}

	s.metrics.IncRelayDelivery("permanent_failure")
	return queue.Permanent(fmt.Errorf("notification %s rejected by provider: %w", msg.NotificationID, err))
}
