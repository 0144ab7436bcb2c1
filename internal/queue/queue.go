package queue

import (
	"context"
	"errors"
	"fmt"
)

// Publisher publishes notification messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg NotificationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg NotificationMessage) error

// Consumer consumes notification messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// NotificationsQueue is the work queue the relay consumes.
	NotificationsQueue = "notifications"

	notificationsRoutingKey = "notifications"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.notifications.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// ErrPermanent marks a handler failure that must not be redelivered.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the consumer dead-letters the message at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Settlement is what the consumer does with a delivery after the handler ran.
type Settlement string

const (
	SettleAck     Settlement = "ack"
	SettleRequeue Settlement = "requeue"
	SettleDead    Settlement = "dead-letter"
)

// Settle decides the outcome of a handled delivery. A failed delivery is
// requeued once; a redelivered or permanently failed one is dead-lettered.
func Settle(handlerErr error, redelivered bool) Settlement {
	switch {
	case handlerErr == nil:
		return SettleAck
	case errors.Is(handlerErr, ErrPermanent), redelivered:
		return SettleDead
	default:
		return SettleRequeue
	}
}
