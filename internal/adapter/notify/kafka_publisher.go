package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	domain "grpc-queue-service/internal/domain/queue"
	"grpc-queue-service/pkg/logger"
)

// KafkaConfig configures the Kafka event producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	RetryMax int
	Timeout  time.Duration
}

// NewSaramaConfig returns the producer settings used for queue events:
// acknowledged by every in-sync replica, idempotent, hash partitioned by key.
func NewSaramaConfig(cfg KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.RetryMax > 0 {
		sc.Producer.Retry.Max = cfg.RetryMax
	}
	sc.Producer.Idempotent = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Net.MaxOpenRequests = 1
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	return sc
}

// KafkaPublisher writes queue events to a Kafka topic keyed by queue id, so
// the events of one queue stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(cfg KafkaConfig, log *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Info("Kafka event producer created", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// Publish sends one event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.QueueID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("queue_id"), Value: []byte(ev.QueueID)},
			{Key: []byte("entry_id"), Value: []byte(ev.EntryID)},
		},
		Timestamp: ev.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s to kafka: %w", ev.Type, err)
	}

	logger.WithContext(ctx, p.log).Debug("event published to kafka",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("type", string(ev.Type)),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.log.Info("Kafka event producer closed")
	return nil
}
