package domain

import "time"

// PaymentOrder is the financial instruction linked to a batch. The batch only
// observes its execution flag.
type PaymentOrder struct {
	Reference  string
	BatchID    string
	Executed   bool
	ExecutedAt *time.Time
	CreatedAt  time.Time
}
