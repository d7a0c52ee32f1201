package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"grpc-queue-service/internal/config"
	redisclient "grpc-queue-service/pkg/redis"
)

// NewRedisClient connects the Redis client shared by the queue store, the
// cache, the rate limiter and the event publisher.
func NewRedisClient(ctx context.Context, cfg *config.Config, l *zap.Logger) (*redisclient.Client, error) {
	rdb, err := redisclient.NewClient(ctx, redisclient.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
		DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
