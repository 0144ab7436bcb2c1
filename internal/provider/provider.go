package provider

import (
	"context"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

// Provider is the outbound notification delivery port.
type Provider interface {
	Send(ctx context.Context, notification domain.Notification) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Notifier delivers notifications synchronously through a Provider.
type Notifier struct {
	provider Provider
}

func NewNotifier(p Provider) *Notifier {
	return &Notifier{provider: p}
}

func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) error {
	_, err := n.provider.Send(ctx, notification)
	return err
}
