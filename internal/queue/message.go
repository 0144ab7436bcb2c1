package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

// NotificationMessage is the broker payload for a staff notification.
type NotificationMessage struct {
	NotificationID string                  `json:"notificationId"`
	CorrelationID  string                  `json:"correlationId,omitempty"`
	Recipient      string                  `json:"recipient"`
	Kind           domain.NotificationKind `json:"kind"`
	ItemKind       domain.ItemKind         `json:"itemKind"`
	ItemID         string                  `json:"itemId"`
	Message        string                  `json:"message"`
	CreatedAt      time.Time               `json:"createdAt"`
}

func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid kind %q", m.Kind)
	}
	if !m.ItemKind.IsValid() {
		return fmt.Errorf("invalid item kind %q", m.ItemKind)
	}
	return nil
}

func MessageFromNotification(n domain.Notification) NotificationMessage {
	return NotificationMessage{
		NotificationID: n.ID,
		CorrelationID:  n.CorrelationID,
		Recipient:      n.Recipient,
		Kind:           n.Kind,
		ItemKind:       n.Item.Kind,
		ItemID:         n.Item.ID,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}
}

func (m NotificationMessage) Notification() domain.Notification {
	return domain.Notification{
		ID:            m.NotificationID,
		Recipient:     m.Recipient,
		Kind:          m.Kind,
		Item:          domain.ItemRef{Kind: m.ItemKind, ID: m.ItemID},
		Message:       m.Message,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
	}
}
