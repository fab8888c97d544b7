package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// SinkKafka is the name of the Kafka sink.
const SinkKafka = "kafka"

// HeaderEventType carries the event type on every record.
const HeaderEventType = "event_type"

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher produces one record per event, keyed by Envelope.Key, with
// the JSON envelope as the value. Produce waits for all in-sync replicas.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher creates a producer. No connection is made until the first
// produce or Check. Extra options are appended to the defaults.
func NewKafkaPublisher(cfg KafkaConfig, opts ...kgo.Opt) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	}

	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

// Name implements app.EventSink.
func (p *KafkaPublisher) Name() string {
	return SinkKafka
}

// Topic returns the topic records are produced to.
func (p *KafkaPublisher) Topic() string {
	return p.topic
}

// Publish implements ports.EventPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event ports.Event) error {
	env, err := NewEnvelope(event)
	if err != nil {
		return err
	}

	data, err := env.Marshal()
	if err != nil {
		return err
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(env.Type)},
		},
	}

	if env.Key != "" {
		rec.Key = []byte(env.Key)
	}

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return unavailable(SinkKafka, err)
	}

	return nil
}

// Check implements ports.HealthChecker.
func (p *KafkaPublisher) Check(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close stops the client. Records still buffered are failed.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
