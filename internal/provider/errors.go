package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// DeliveryError is a failed notification delivery. The relay requeues
// transient failures and drops the rest.
type DeliveryError struct {
	NotificationID string
	StatusCode     int
	Reason         string
	Transient      bool
	Err            error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("notification delivery failed")
	if e.NotificationID != "" {
		fmt.Fprintf(&b, " for %s", e.NotificationID)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		b.WriteString(": " + reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether a delivery is worth retrying. Cancellation
// never is; deadlines, refused or reset connections and network timeouts are.
func IsTransient(err error) bool {
	var deliveryErr *DeliveryError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &deliveryErr):
		return deliveryErr.Transient
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
