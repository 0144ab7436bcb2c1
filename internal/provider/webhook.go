package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	ID       string `json:"id"`
	To       string `json:"to"`
	Kind     string `json:"kind"`
	ItemKind string `json:"itemKind"`
	ItemID   string `json:"itemId"`
	Content  string `json:"content"`
}

// WebhookProvider posts notifications as JSON to a single HTTP endpoint.
type WebhookProvider struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookProvider(endpoint string) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookProviderWithClient(endpoint, client)
}

func NewWebhookProviderWithClient(endpoint string, client *resty.Client) (*WebhookProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookProvider) Send(ctx context.Context, notification domain.Notification) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	reqBody := webhookRequest{
		ID:       notification.ID,
		To:       notification.Recipient,
		Kind:     strings.ToLower(notification.Kind.String()),
		ItemKind: strings.ToLower(notification.Item.Kind.String()),
		ItemID:   notification.Item.ID,
		Content:  notification.Message,
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody)
	if notification.CorrelationID != "" {
		request.SetHeader("X-Correlation-ID", notification.CorrelationID)
	}

	response, err := request.Post(p.endpoint)
	if err != nil {
		return nil, &DeliveryError{
			NotificationID: notification.ID,
			Reason:         "webhook request failed",
			Transient:      !errors.Is(err, context.Canceled),
			Err:            err,
		}
	}
	if response == nil {
		return nil, &DeliveryError{
			NotificationID: notification.ID,
			Reason:         "webhook returned no response",
			Transient:      true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  providerMessageID(response),
		}, nil
	}

	return nil, &DeliveryError{
		NotificationID: notification.ID,
		StatusCode:     statusCode,
		Reason:         rejectionReason(responseBody),
		Transient:      isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// rejectionReason keeps the first line of the webhook's error body.
func rejectionReason(body string) string {
	if body == "" {
		return "webhook rejected the notification"
	}
	line, _, _ := strings.Cut(body, "\n")
	return strings.TrimSpace(line)
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
