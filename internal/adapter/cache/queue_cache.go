package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "grpc-queue-service/internal/domain/queue"
)

// QueueCache defines the interface for queue snapshot caching operations.
type QueueCache interface {
	// Get retrieves a queue from cache by ID.
	// Returns nil if the queue is not found in cache.
	Get(ctx context.Context, queueID string) (*domain.Queue, error)

	// Set stores a queue in cache with the configured TTL unless the cache
	// already holds the same or a newer version of it.
	Set(ctx context.Context, q *domain.Queue) error

	// Delete removes a queue from cache by ID.
	Delete(ctx context.Context, queueID string) error
}

// setIfNewer writes the snapshot hash only when its version is ahead of the
// cached one.
//
// KEYS[1] snapshot key
// ARGV[1] JSON snapshot, ARGV[2] version, ARGV[3] ttl in milliseconds
var setIfNewer = redis.NewScript(`
local cached = redis.call('HGET', KEYS[1], 'version')
if cached and tonumber(cached) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisQueueCache implements QueueCache on Redis hashes holding the JSON
// snapshot next to its version.
type RedisQueueCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisQueueCache creates a new Redis-backed queue cache.
func NewRedisQueueCache(client *redis.Client, ttl time.Duration, log *zap.Logger) QueueCache {
	return &RedisQueueCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (c *RedisQueueCache) cacheKey(queueID string) string {
	return fmt.Sprintf("queue:%s", queueID)
}

// Get retrieves a queue from Redis cache.
func (c *RedisQueueCache) Get(ctx context.Context, queueID string) (*domain.Queue, error) {
	data, err := c.client.HGet(ctx, c.cacheKey(queueID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", zap.String("queue_id", queueID))
		return nil, nil
	}
	if err != nil {
		c.log.Error("failed to get from cache", zap.String("queue_id", queueID), zap.Error(err))
		return nil, err
	}

	var q domain.Queue
	if err := json.Unmarshal(data, &q); err != nil {
		c.log.Error("failed to unmarshal cached queue", zap.String("queue_id", queueID), zap.Error(err))
		return nil, err
	}

	c.log.Debug("cache hit", zap.String("queue_id", queueID))
	return &q, nil
}

// Set stores a queue snapshot with TTL. An older snapshot than the cached
// one is dropped.
func (c *RedisQueueCache) Set(ctx context.Context, q *domain.Queue) error {
	if q == nil {
		return fmt.Errorf("cannot cache nil queue")
	}

	data, err := json.Marshal(q)
	if err != nil {
		c.log.Error("failed to marshal queue for cache", zap.String("queue_id", q.ID), zap.Error(err))
		return err
	}

	written, err := setIfNewer.Run(ctx, c.client, []string{c.cacheKey(q.ID)}, data, q.Version, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Error("failed to set cache", zap.String("queue_id", q.ID), zap.Error(err))
		return err
	}

	if written == 0 {
		c.log.Debug("newer queue already cached", zap.String("queue_id", q.ID), zap.Int64("version", q.Version))
		return nil
	}
	c.log.Debug("cached queue", zap.String("queue_id", q.ID), zap.Int64("version", q.Version), zap.Duration("ttl", c.ttl))
	return nil
}

// Delete removes a queue from Redis cache.
func (c *RedisQueueCache) Delete(ctx context.Context, queueID string) error {
	if err := c.client.Del(ctx, c.cacheKey(queueID)).Err(); err != nil {
		c.log.Error("failed to delete from cache", zap.String("queue_id", queueID), zap.Error(err))
		return err
	}

	c.log.Debug("deleted from cache", zap.String("queue_id", queueID))
	return nil
}
