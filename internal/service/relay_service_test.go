package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/provider"
	"github.com/kursadbilgin/bordereau-flow/internal/queue"
	"go.uber.org/zap"
)

func relayMessage() queue.NotificationMessage {
	return queue.NotificationMessage{
		NotificationID: "n1",
		CorrelationID:  "corr-1",
		Recipient:      "h1",
		Kind:           domain.NotificationItemAssigned,
		ItemKind:       domain.ItemKindDocument,
		ItemID:         "d1",
		Message:        "document d1 was assigned to you",
	}
}

func TestRelayServiceProcessMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		sendErr       error
		wantErr       bool
		wantPermanent bool
	}{
		{name: "delivered"},
		{name: "transient failure", sendErr: &provider.DeliveryError{StatusCode: 503, Transient: true}, wantErr: true},
		{name: "permanent failure", sendErr: &provider.DeliveryError{StatusCode: 400}, wantErr: true, wantPermanent: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var scope string
			limiter := &fakeRateLimiter{
				waitFn: func(ctx context.Context, s string) error {
					scope = s
					return nil
				},
			}
			p := &fakeProvider{
				sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
					if n.ID != "n1" || n.Recipient != "h1" || n.Item.ID != "d1" {
						t.Fatalf("notification = %+v, want n1 for h1 on d1", n)
					}
					if tt.sendErr != nil {
						return nil, tt.sendErr
					}
					return &provider.ProviderResponse{StatusCode: 202, MessageID: "msg-1"}, nil
				},
			}

			relay, err := NewRelayService(&fakeConsumer{}, p, limiter, 1, nil, zap.NewNop())
			if err != nil {
				t.Fatalf("NewRelayService() error = %v", err)
			}

			err = relay.processMessage(context.Background(), relayMessage())
			if (err != nil) != tt.wantErr {
				t.Fatalf("processMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, queue.ErrPermanent); got != tt.wantPermanent {
				t.Fatalf("permanent = %v, want %v (err = %v)", got, tt.wantPermanent, err)
			}
			if scope != relayRateScope {
				t.Fatalf("rate scope = %q, want %q", scope, relayRateScope)
			}
		})
	}
}

func TestRelayServiceRateLimitErrorIsRequeued(t *testing.T) {
	t.Parallel()

	limiter := &fakeRateLimiter{
		waitFn: func(ctx context.Context, scope string) error { return context.DeadlineExceeded },
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			t.Fatal("provider must not be called when the limiter fails")
			return nil, nil
		},
	}

	relay, _ := NewRelayService(&fakeConsumer{}, p, limiter, 1, nil, zap.NewNop())
	err := relay.processMessage(context.Background(), relayMessage())
	if err == nil || errors.Is(err, queue.ErrPermanent) {
		t.Fatalf("processMessage() error = %v, want a requeueable error", err)
	}
	if queue.Settle(err, false) != queue.SettleRequeue {
		t.Fatalf("settlement = %s, want requeue", queue.Settle(err, false))
	}
}

func TestRelayServiceStartRunsConsumers(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{
		consumeFn: func(ctx context.Context, queueName string, handler queue.MessageHandler) error {
			if queueName != queue.NotificationsQueue {
				t.Errorf("queue = %q, want %q", queueName, queue.NotificationsQueue)
			}
			if started.Add(1) == 3 {
				cancel()
			}
			<-ctx.Done()
			return nil
		},
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, n domain.Notification) (*provider.ProviderResponse, error) {
			return &provider.ProviderResponse{}, nil
		},
	}

	relay, _ := NewRelayService(consumer, p, nil, 3, nil, zap.NewNop())
	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Load() != 3 {
		t.Fatalf("consumers started = %d, want 3", started.Load())
	}
}

func TestNewRelayServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	if _, err := NewRelayService(nil, p, nil, 1, nil, nil); err == nil {
		t.Fatal("NewRelayService() without consumer should fail")
	}
	if _, err := NewRelayService(&fakeConsumer{}, nil, nil, 1, nil, nil); err == nil {
		t.Fatal("NewRelayService() without provider should fail")
	}
}
