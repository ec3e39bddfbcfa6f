package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// IntentBus implements domain.IntentPublisher on top of a SignalBus. Each
// event is published for live subscribers and appended to a stream for
// replay.
type IntentBus struct {
	bus            domain.SignalBus
	intentChannel  string
	intentStream   string
	rankingChannel string
	rankingStream  string
}

// NewIntentBus creates an IntentBus whose channel and stream names live
// under the client's key prefix.
func NewIntentBus(c *Client, bus domain.SignalBus) *IntentBus {
	return &IntentBus{
		bus:            bus,
		intentChannel:  c.Key("intents"),
		intentStream:   c.Key("stream", "intents"),
		rankingChannel: c.Key("rankings"),
		rankingStream:  c.Key("stream", "rankings"),
	}
}

// IntentChannel returns the Pub/Sub channel intents are published on.
func (ib *IntentBus) IntentChannel() string { return ib.intentChannel }

// PublishIntent publishes the intent together with its execution result.
func (ib *IntentBus) PublishIntent(ctx context.Context, intent domain.OrderIntent, res domain.OrderResult) error {
	payload, err := json.Marshal(domain.NewIntentEvent(intent, res))
	if err != nil {
		return fmt.Errorf("redis: marshal intent %s: %w", intent.ID, err)
	}
	return ib.fanOut(ctx, ib.intentChannel, ib.intentStream, payload)
}

// PublishRanking publishes a session's ranked universe.
func (ib *IntentBus) PublishRanking(ctx context.Context, u domain.RankedUniverse) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("redis: marshal ranking: %w", err)
	}
	return ib.fanOut(ctx, ib.rankingChannel, ib.rankingStream, payload)
}

func (ib *IntentBus) fanOut(ctx context.Context, channel, stream string, payload []byte) error {
	if err := ib.bus.Publish(ctx, channel, payload); err != nil {
		return err
	}
	return ib.bus.StreamAppend(ctx, stream, payload)
}

var _ domain.IntentPublisher = (*IntentBus)(nil)
