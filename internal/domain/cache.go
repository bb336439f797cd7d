package domain

import (
	"context"
	"time"
)

// MarketCache is a short-TTL snapshot cache in front of MarketStore reads.
// The engine invalidates entries after every mutation; readers tolerate
// staleness (quotes are advisory).
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides cross-process mutual exclusion keyed by market id.
// Acquire returns ErrLockHeld without blocking when the lock is taken; the
// returned unlock function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter applies a sliding-window limit per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single durable message read back from the event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans trade and claim events out to subscribers (websocket hub,
// notifiers) and appends them to a durable stream for external indexers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
