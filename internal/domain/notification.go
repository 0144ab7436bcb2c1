package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationKind tells the recipient why they are being notified.
type NotificationKind string

const (
	NotificationItemAssigned   NotificationKind = "ITEM_ASSIGNED"
	NotificationItemReassigned NotificationKind = "ITEM_REASSIGNED"
	NotificationItemReleased   NotificationKind = "ITEM_RELEASED"
	NotificationSLABreach      NotificationKind = "SLA_BREACH"
)

func (k NotificationKind) String() string { return string(k) }

func (k NotificationKind) IsValid() bool {
	switch k {
	case NotificationItemAssigned, NotificationItemReassigned, NotificationItemReleased, NotificationSLABreach:
		return true
	}
	return false
}

// Notification is a best-effort message to a staff user. It carries no
// delivery state; delivery is owned by the dispatcher in use.
type Notification struct {
	ID            string
	Recipient     string
	Kind          NotificationKind
	Item          ItemRef
	Message       string
	CorrelationID string
	CreatedAt     time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("%w: invalid notification kind %q", ErrValidation, n.Kind)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return n.Item.Validate()
}
