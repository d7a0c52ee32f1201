package infrastructure

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"grpc-queue-service/internal/adapter/notify"
	"grpc-queue-service/internal/config"
)

// Publishers holds the event publishers enabled in configuration.
type Publishers struct {
	Fanout notify.Fanout
	kafka  *notify.KafkaPublisher
}

// NewPublishers builds the Redis and Kafka publishers that are enabled.
func NewPublishers(cfg *config.Config, rdb redis.Cmdable, l *zap.Logger) (*Publishers, error) {
	p := &Publishers{}

	if cfg.Notify.RedisEnabled {
		p.Fanout = append(p.Fanout, notify.NewRedisPublisher(rdb, cfg.Notify.RedisChannel, l))
		l.Info("redis event publisher enabled", zap.String("channel", cfg.Notify.RedisChannel))
	}

	if cfg.Notify.KafkaEnabled {
		kp, err := notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers:  cfg.Notify.KafkaBrokers,
			Topic:    cfg.Notify.KafkaTopic,
			RetryMax: cfg.Notify.KafkaRetryMax,
			Timeout:  10 * time.Second,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		p.kafka = kp
		p.Fanout = append(p.Fanout, kp)
		l.Info("kafka event publisher enabled",
			zap.Strings("brokers", cfg.Notify.KafkaBrokers),
			zap.String("topic", cfg.Notify.KafkaTopic),
		)
	}

	return p, nil
}

// Close releases the Kafka producer, if any.
func (p *Publishers) Close() error {
	if p == nil || p.kafka == nil {
		return nil
	}
	return p.kafka.Close()
}
