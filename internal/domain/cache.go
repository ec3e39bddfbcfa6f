package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, inst Instrument, price float64, ts time.Time) error
	GetPrice(ctx context.Context, inst Instrument) (float64, time.Time, error)
	GetPrices(ctx context.Context, insts []Instrument) (map[Instrument]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// IntentPublisher fans emitted intents and session rankings out to
// downstream consumers.
type IntentPublisher interface {
	PublishIntent(ctx context.Context, intent OrderIntent, res OrderResult) error
	PublishRanking(ctx context.Context, u RankedUniverse) error
}
