// Package lease defines the cross-instance mutual exclusion used by
// periodic jobs.
package lease

import (
	"context"
	"time"
)

// Release gives the lease back. It is safe to call after the lease expired.
type Release func(ctx context.Context) error

// Leaser grants a named lease to at most one holder at a time.
type Leaser interface {
	// TryAcquire returns acquired=false without error when another holder
	// owns the lease.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release Release, acquired bool, err error)
}
