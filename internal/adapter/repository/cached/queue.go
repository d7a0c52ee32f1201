package cached

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"grpc-queue-service/internal/adapter/cache"
	domain "grpc-queue-service/internal/domain/queue"
	"grpc-queue-service/internal/usecase/queue"
)

// QueueRepository implements queue.Repository with caching of queue snapshots.
// It wraps a persistent store and a cache implementation. Only plain queue
// reads are served from cache; every atomic attempt goes to the store and
// writes its committed snapshot through. Cache writes are version-guarded, so
// a miss that read the store before a commit cannot overwrite the newer
// snapshot.
type QueueRepository struct {
	store queue.Repository
	cache cache.QueueCache
	log   *zap.Logger
	group singleflight.Group
}

// NewQueueRepository creates a new instance of QueueRepository.
func NewQueueRepository(store queue.Repository, cache cache.QueueCache, log *zap.Logger) queue.Repository {
	return &QueueRepository{
		store: store,
		cache: cache,
		log:   log,
	}
}

// CreateQueue delegates to the store.
func (r *QueueRepository) CreateQueue(ctx context.Context, q *domain.Queue) error {
	return r.store.CreateQueue(ctx, q)
}

// GetQueue retrieves a queue by ID using Cache-Aside pattern.
func (r *QueueRepository) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	// Try to get from cache first
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, queueID)
		if err != nil {
			r.log.Warn("cache get error, falling back to store", zap.String("queue_id", queueID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	// Cache miss or cache disabled - use single-flight to prevent stampede
	key := fmt.Sprintf("queue:%s", queueID)
	result, err, _ := r.group.Do(key, func() (any, error) {
		// Double-check cache in case another request populated it while we were waiting
		if r.cache != nil {
			cached, err := r.cache.Get(ctx, queueID)
			if err == nil && cached != nil {
				return cached, nil
			}
		}

		q, err := r.store.GetQueue(ctx, queueID)
		if err != nil {
			return nil, err
		}

		if r.cache != nil {
			if err := r.cache.Set(ctx, q); err != nil {
				r.log.Warn("failed to cache queue", zap.String("queue_id", queueID), zap.Error(err))
			}
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing the flight must not share the pointer
	q := *result.(*domain.Queue)
	return &q, nil
}

// ListQueues delegates to the store.
func (r *QueueRepository) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	return r.store.ListQueues(ctx)
}

// GetEntry delegates to the store.
func (r *QueueRepository) GetEntry(ctx context.Context, queueID, entryID string) (*domain.Entry, error) {
	return r.store.GetEntry(ctx, queueID, entryID)
}

// FindWaitingEntry delegates to the store.
func (r *QueueRepository) FindWaitingEntry(ctx context.Context, queueID, userID string) (*domain.Entry, error) {
	return r.store.FindWaitingEntry(ctx, queueID, userID)
}

// IssueTicket runs the attempt on the store and caches the committed queue.
func (r *QueueRepository) IssueTicket(ctx context.Context, p queue.IssueTicketParams) (*domain.Queue, *domain.Entry, error) {
	q, e, err := r.store.IssueTicket(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	r.writeThrough(ctx, q)
	return q, e, nil
}

// CallNext runs the attempt on the store and caches the committed queue.
func (r *QueueRepository) CallNext(ctx context.Context, queueID string, now time.Time) (*domain.Queue, *domain.Entry, error) {
	q, e, err := r.store.CallNext(ctx, queueID, now)
	if err != nil {
		return q, nil, err
	}
	r.writeThrough(ctx, q)
	return q, e, nil
}

// CancelEntry runs the attempt on the store and caches the committed queue.
func (r *QueueRepository) CancelEntry(ctx context.Context, p queue.CancelEntryParams) (*domain.Queue, *domain.Entry, error) {
	q, e, err := r.store.CancelEntry(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	r.writeThrough(ctx, q)
	return q, e, nil
}

// ListWaiting delegates to the store so the list and the counters come from one read.
func (r *QueueRepository) ListWaiting(ctx context.Context, queueID string) (*domain.Queue, []domain.Entry, error) {
	return r.store.ListWaiting(ctx, queueID)
}

// ListWaitingByUser delegates to the store.
func (r *QueueRepository) ListWaitingByUser(ctx context.Context, userID string) ([]domain.Entry, error) {
	return r.store.ListWaitingByUser(ctx, userID)
}

// writeThrough caches a committed snapshot. If that fails the entry is
// dropped instead, leaving the next read to go to the store.
func (r *QueueRepository) writeThrough(ctx context.Context, q *domain.Queue) {
	if r.cache == nil || q == nil {
		return
	}
	err := r.cache.Set(ctx, q)
	if err == nil {
		return
	}
	r.log.Warn("failed to cache committed queue", zap.String("queue_id", q.ID), zap.Error(err))
	if err := r.cache.Delete(ctx, q.ID); err != nil {
		r.log.Warn("failed to invalidate cached queue", zap.String("queue_id", q.ID), zap.Error(err))
	}
}
