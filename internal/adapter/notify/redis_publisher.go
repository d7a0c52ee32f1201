package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "grpc-queue-service/internal/domain/queue"
	"grpc-queue-service/pkg/logger"
)

// RedisPublisher fans queue events out over Redis pub/sub. Every event goes
// to the shared channel and to a per-queue channel "<channel>:<queueId>" so
// a display screen can follow a single queue.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
	log     *zap.Logger
}

// NewRedisPublisher creates a new Redis pub/sub publisher.
func NewRedisPublisher(client redis.Cmdable, channel string, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// QueueChannel returns the per-queue channel name.
func (p *RedisPublisher) QueueChannel(queueID string) string {
	return fmt.Sprintf("%s:%s", p.channel, queueID)
}

// Publish sends the event to both channels in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.Publish(ctx, p.QueueChannel(ev.QueueID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s to redis: %w", ev.Type, err)
	}

	logger.WithContext(ctx, p.log).Debug("event published to redis",
		zap.String("channel", p.channel),
		zap.String("type", string(ev.Type)),
		zap.String("queue_id", ev.QueueID),
	)
	return nil
}
