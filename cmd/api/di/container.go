package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"grpc-queue-service/cmd/api/infrastructure"
	"grpc-queue-service/internal/adapter/cache"
	"grpc-queue-service/internal/adapter/db/memory"
	"grpc-queue-service/internal/adapter/db/postgres"
	"grpc-queue-service/internal/adapter/db/redisstore"
	ginhandler "grpc-queue-service/internal/adapter/gin/handler"
	"grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/metrics"
	"grpc-queue-service/internal/adapter/repository/cached"
	"grpc-queue-service/internal/config"
	"grpc-queue-service/internal/usecase/queue"
	redisclient "grpc-queue-service/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	RedisClient *redisclient.Client
	Publishers  *infrastructure.Publishers
	Metrics     *metrics.Recorder
	QueueUC     queue.Service
	RateLimiter *middleware.RateLimiter
	GinHandler  *ginhandler.QueueHandler
}

// NewContainer creates and initializes all application dependencies
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (_ *Container, err error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l, Metrics: metrics.NewRecorder()}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.RedisClient, err = infrastructure.NewRedisClient(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	repo, err := c.newQueueRepository()
	if err != nil {
		return nil, err
	}

	c.Publishers, err = infrastructure.NewPublishers(cfg, c.RedisClient.Client, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize publishers: %w", err)
	}

	c.QueueUC = queue.New(repo, l,
		queue.WithNotifier(c.Publishers.Fanout),
		queue.WithMetrics(c.Metrics),
		queue.WithRetryPolicy(queue.RetryPolicy{
			JoinAttempts:    cfg.Queue.JoinMaxAttempts,
			AdvanceAttempts: cfg.Queue.AdvanceMaxAttempts,
			LeaveAttempts:   cfg.Queue.LeaveMaxAttempts,
			Backoff:         cfg.Queue.RetryBackoff(),
		}),
	)

	c.RateLimiter = middleware.NewRateLimiter(
		c.RedisClient.Client,
		middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstCapacity:     cfg.RateLimit.BurstCapacity,
			Enabled:           cfg.RateLimit.Enabled,
		},
		l,
	)

	c.GinHandler = ginhandler.NewQueueHandler(c.QueueUC, l)

	return c, nil
}

// newQueueRepository opens the configured store and wraps it with the
// Redis read cache when enabled.
func (c *Container) newQueueRepository() (queue.Repository, error) {
	var store queue.Repository

	switch c.Config.Queue.Store {
	case config.StorePostgres:
		db, err := infrastructure.NewDatabase(c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.DB = db
		store = postgres.NewQueueRepoPG(db, c.Logger)
	case config.StoreRedis:
		store = redisstore.NewQueueRepo(c.RedisClient.Client, c.Logger)
	case config.StoreMemory:
		store = memory.NewQueueRepo()
	default:
		return nil, fmt.Errorf("unknown queue store %q", c.Config.Queue.Store)
	}
	c.Logger.Info("queue store selected", zap.String("store", c.Config.Queue.Store))

	// the redis store already serves reads from redis
	if !c.Config.Queue.CacheEnabled || c.Config.Queue.Store == config.StoreRedis {
		return store, nil
	}

	queueCache := cache.NewRedisQueueCache(
		c.RedisClient.Client,
		time.Duration(c.Config.Redis.CacheTTL)*time.Second,
		c.Logger,
	)
	return cached.NewQueueRepository(store, queueCache, c.Logger), nil
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	if err := c.Publishers.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close publishers: %w", err))
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
