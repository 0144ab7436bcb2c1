package service

import (
	"context"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"go.uber.org/zap"
)

// Notifier dispatches best-effort staff notifications.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	observability.WithContextLogger(n.logger, ctx).Info("notification",
		zap.String("notificationId", notification.ID),
		zap.String("recipient", notification.Recipient),
		zap.String("kind", notification.Kind.String()),
		zap.String("item", notification.Item.String()),
		zap.String("message", notification.Message),
	)
	return nil
}
