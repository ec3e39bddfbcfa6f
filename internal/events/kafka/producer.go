// Package kafka publishes order intents and session rankings to Kafka topics
// for downstream consumers such as alerting and reporting services.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// ProducerConfig holds the broker list and topic names.
type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	DecisionsTopic string
	RankingsTopic  string
}

// Producer implements domain.IntentPublisher with a sarama SyncProducer.
// Intents are keyed by instrument so one instrument's events stay ordered
// within a partition.
type Producer struct {
	sp             sarama.SyncProducer
	decisionsTopic string
	rankingsTopic  string
	logger         *slog.Logger
}

// NewProducer dials the brokers and returns a Producer.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Net.DialTimeout = 10 * time.Second

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}
	return newProducer(sp, cfg, logger), nil
}

func newProducer(sp sarama.SyncProducer, cfg ProducerConfig, logger *slog.Logger) *Producer {
	return &Producer{
		sp:             sp,
		decisionsTopic: cfg.DecisionsTopic,
		rankingsTopic:  cfg.RankingsTopic,
		logger:         logger.With(slog.String("component", "kafka_producer")),
	}
}

// PublishIntent sends the intent and its execution result to the decisions
// topic.
func (p *Producer) PublishIntent(ctx context.Context, intent domain.OrderIntent, res domain.OrderResult) error {
	payload, err := json.Marshal(domain.NewIntentEvent(intent, res))
	if err != nil {
		return fmt.Errorf("kafka: marshal intent %s: %w", intent.ID, err)
	}
	return p.send(ctx, p.decisionsTopic, intent.Instrument.String(), payload)
}

// PublishRanking sends a session's ranked universe to the rankings topic.
func (p *Producer) PublishRanking(ctx context.Context, u domain.RankedUniverse) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("kafka: marshal ranking: %w", err)
	}
	return p.send(ctx, p.rankingsTopic, u.Session.Format(time.DateOnly), payload)
}

func (p *Producer) send(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, offset, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka: send to %s: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the underlying producer.
func (p *Producer) Close() error {
	return p.sp.Close()
}

var _ domain.IntentPublisher = (*Producer)(nil)
