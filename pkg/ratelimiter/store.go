package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. Implementations must apply refill and
// consumption atomically per key.
type Store interface {
	// ConsumeTokens takes tokens from the bucket when enough are available.
	// A negative remaining means the request was denied and nothing was taken.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	Reset(ctx context.Context, key string) error
}
