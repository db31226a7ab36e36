package ratelimit

import "context"

// RateLimiter controls delivery throughput per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

// Unlimited is a no-op limiter for deployments without Redis and for tests.
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context, channel string) (bool, error) { return true, nil }
func (Unlimited) Wait(ctx context.Context, channel string) error          { return nil }
