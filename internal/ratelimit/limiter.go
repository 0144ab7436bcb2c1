package ratelimit

import "context"

// RateLimiter caps outbound deliveries per scope (a notification driver or
// a recipient).
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
