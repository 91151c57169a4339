// Package kafka publishes ledger events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"card-escrow-ledger/config"
	"card-escrow-ledger/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Header keys set on every record.
const (
	HeaderEventType = "event-type"
	HeaderSequence  = "sequence"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher implements ports.EventPublisher. Records are keyed by card
// address so one card's events stay ordered within a partition.
type Publisher struct {
	producer Producer
	topic    string
	log      zerolog.Logger
}

// NewClient creates an idempotent franz-go producer client.
func NewClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return client, nil
}

// NewPublisher creates a publisher writing to topic.
func NewPublisher(producer Producer, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, log: log}
}

// Name returns the sink name used in metrics.
func (p *Publisher) Name() string {
	return "kafka"
}

// Publish produces one record per event and waits for every ack.
func (p *Publisher) Publish(ctx context.Context, events []domain.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for i := range events {
		rec, err := p.record(&events[i])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	p.log.Debug().Int("count", len(records)).Str("topic", p.topic).Msg("events produced")
	return nil
}

func (p *Publisher) record(e *domain.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %d: %w", e.Sequence, err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.CardAddress.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(e.Type)},
			{Key: HeaderSequence, Value: []byte(strconv.FormatInt(e.Sequence, 10))},
		},
	}, nil
}
