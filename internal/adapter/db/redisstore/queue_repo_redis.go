package redisstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "grpc-queue-service/internal/domain/queue"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

// QueueRepo implements the queue Repository on Redis. Each mutation is an
// optimistic WATCH/MULTI transaction on the queue hash; a transaction that
// loses to a concurrent writer reports apperrors.ErrConflict.
type QueueRepo struct {
	client *redis.Client
	log    *zap.Logger
}

// NewQueueRepo creates a Redis-backed queue store.
func NewQueueRepo(client *redis.Client, log *zap.Logger) *QueueRepo {
	return &QueueRepo{client: client, log: log}
}

var _ usecase.Repository = (*QueueRepo)(nil)

// CreateQueue stores a new queue hash and indexes its id.
func (r *QueueRepo) CreateQueue(ctx context.Context, q *domain.Queue) error {
	if q == nil {
		return errors.New("queue cannot be nil")
	}

	key := queueKey(q.ID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apperrors.NewAlreadyExistsError("queue", fmt.Sprintf("queue %s already exists", q.ID))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, queueFields(q))
			pipe.SAdd(ctx, queuesKey, q.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return r.attemptError("create queue", q.ID, err)
	}

	r.log.Info("queue created in redis", zap.String("queue_id", q.ID))
	return nil
}

// GetQueue retrieves a queue by ID.
func (r *QueueRepo) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	return getQueue(ctx, r.client, queueID)
}

// ListQueues retrieves all queues ordered by name.
func (r *QueueRepo) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	ids, err := r.client.SMembers(ctx, queuesKey).Result()
	if err != nil {
		r.log.Error("failed to list queue ids", zap.Error(err))
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, queueKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load queues: %w", err)
	}

	queues := make([]domain.Queue, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		q, err := decodeQueue(m)
		if err != nil {
			return nil, err
		}
		queues = append(queues, *q)
	}

	slices.SortFunc(queues, func(a, b domain.Queue) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return queues, nil
}

// GetEntry retrieves one entry of a queue.
func (r *QueueRepo) GetEntry(ctx context.Context, queueID, entryID string) (*domain.Entry, error) {
	return getEntry(ctx, r.client, queueID, entryID)
}

// FindWaitingEntry returns the user's waiting entry in the queue, or nil.
func (r *QueueRepo) FindWaitingEntry(ctx context.Context, queueID, userID string) (*domain.Entry, error) {
	entryID, err := r.client.HGet(ctx, userWaitingKey(userID), queueID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find waiting entry: %w", err)
	}

	e, err := getEntry(ctx, r.client, queueID, entryID)
	if errors.Is(err, apperrors.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !e.IsWaiting() {
		return nil, nil
	}
	return e, nil
}

// IssueTicket runs one join attempt.
func (r *QueueRepo) IssueTicket(ctx context.Context, p usecase.IssueTicketParams) (*domain.Queue, *domain.Entry, error) {
	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	key := queueKey(p.QueueID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		if q, err = getQueue(ctx, tx, p.QueueID); err != nil {
			return err
		}

		waiting, err := tx.HExists(ctx, userWaitingKey(p.UserID), p.QueueID).Result()
		if err != nil {
			return err
		}
		if waiting {
			return apperrors.ErrAlreadyInQueue
		}

		ticket, err := domain.NextTicket(q, p.Now)
		if err != nil {
			return err
		}
		if entry, err = domain.NewEntry(p.EntryID, p.QueueID, p.UserID, p.UserName, ticket, p.Now); err != nil {
			return err
		}
		q.Version++

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, counterFields(q))
			pipe.HSet(ctx, entryKey(q.ID, entry.ID), entryFields(entry))
			pipe.ZAdd(ctx, waitingKey(q.ID), redis.Z{Score: float64(ticket), Member: entry.ID})
			pipe.HSet(ctx, userWaitingKey(entry.UserID), q.ID, entry.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, nil, r.attemptError("issue ticket", p.QueueID, err)
	}

	r.log.Debug("ticket issued in redis", zap.String("queue_id", q.ID), zap.Int64("ticket_number", entry.TicketNumber))
	return q, entry, nil
}

// CallNext runs one advance attempt.
func (r *QueueRepo) CallNext(ctx context.Context, queueID string, now time.Time) (*domain.Queue, *domain.Entry, error) {
	var (
		q      *domain.Queue
		called *domain.Entry
	)
	key := queueKey(queueID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		if q, err = getQueue(ctx, tx, queueID); err != nil {
			return err
		}

		next, err := waitingAfter(ctx, tx, queueID, q.CurrentNumber, 1)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			return apperrors.ErrQueueEmpty
		}
		if called, err = getEntry(ctx, tx, queueID, next[0]); err != nil {
			return err
		}
		serving, err := tx.SMembers(ctx, servingKey(queueID)).Result()
		if err != nil {
			return err
		}

		if err := q.Call(called.TicketNumber, now); err != nil {
			return err
		}
		if err := called.TransitionTo(domain.StatusServing, now); err != nil {
			return err
		}
		q.Version++

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, counterFields(q))
			for _, id := range serving {
				pipe.HSet(ctx, entryKey(queueID, id), "status", string(domain.StatusServed), "updated_at", formatTime(now))
			}
			pipe.Del(ctx, servingKey(queueID))
			pipe.SAdd(ctx, servingKey(queueID), called.ID)
			pipe.HSet(ctx, entryKey(queueID, called.ID), entryFields(called))
			pipe.ZRem(ctx, waitingKey(queueID), called.ID)
			pipe.HDel(ctx, userWaitingKey(called.UserID), queueID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, apperrors.ErrQueueEmpty) {
		return q, nil, err
	}
	if err != nil {
		return nil, nil, r.attemptError("call next", queueID, err)
	}

	r.log.Debug("ticket called in redis", zap.String("queue_id", queueID), zap.Int64("ticket_number", called.TicketNumber))
	return q, called, nil
}

// CancelEntry runs one leave attempt.
func (r *QueueRepo) CancelEntry(ctx context.Context, p usecase.CancelEntryParams) (*domain.Queue, *domain.Entry, error) {
	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	key := queueKey(p.QueueID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		if q, err = getQueue(ctx, tx, p.QueueID); err != nil {
			return err
		}
		if entry, err = getEntry(ctx, tx, p.QueueID, p.EntryID); err != nil {
			return err
		}
		if entry.UserID != p.UserID {
			return apperrors.ErrEntryNotFound
		}
		if err := entry.TransitionTo(domain.StatusCancelled, p.Now); err != nil {
			return err
		}
		q.Release(p.Now)
		q.Version++

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, counterFields(q))
			pipe.HSet(ctx, entryKey(q.ID, entry.ID), "status", string(entry.Status), "updated_at", formatTime(entry.UpdatedAt))
			pipe.ZRem(ctx, waitingKey(q.ID), entry.ID)
			pipe.HDel(ctx, userWaitingKey(entry.UserID), q.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, nil, r.attemptError("cancel entry", p.QueueID, err)
	}
	return q, entry, nil
}

// snapshotAttempts bounds how often ListWaiting rereads a queue that keeps
// changing underneath it.
const snapshotAttempts = 3

// ListWaiting returns the queue and its callable entries in ticket order,
// read from one consistent snapshot.
func (r *QueueRepo) ListWaiting(ctx context.Context, queueID string) (*domain.Queue, []domain.Entry, error) {
	var (
		q       *domain.Queue
		entries []domain.Entry
		err     error
	)
	key := queueKey(queueID)
	for attempt := 0; attempt < snapshotAttempts; attempt++ {
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			var err error
			if q, err = getQueue(ctx, tx, queueID); err != nil {
				return err
			}
			ids, err := waitingAfter(ctx, tx, queueID, q.CurrentNumber, 0)
			if err != nil {
				return err
			}
			if entries, err = loadEntries(ctx, tx, queueID, ids); err != nil {
				return err
			}
			// EXEC fails if the queue changed while reading
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Exists(ctx, key)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	if err != nil {
		return nil, nil, r.attemptError("list waiting", queueID, err)
	}
	return q, entries, nil
}

// ListWaitingByUser returns the user's waiting entries across queues.
func (r *QueueRepo) ListWaitingByUser(ctx context.Context, userID string) ([]domain.Entry, error) {
	byQueue, err := r.client.HGetAll(ctx, userWaitingKey(userID)).Result()
	if err != nil {
		r.log.Error("failed to list user entries", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list user entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(byQueue))
	for queueID, entryID := range byQueue {
		e, err := getEntry(ctx, r.client, queueID, entryID)
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if e.IsWaiting() {
			entries = append(entries, *e)
		}
	}

	slices.SortFunc(entries, func(a, b domain.Entry) int {
		return a.EntryTime.Compare(b.EntryTime)
	})
	return entries, nil
}

// waitingAfter returns waiting entry ids with a ticket after current, in
// ticket order. A zero limit returns all of them.
func waitingAfter(ctx context.Context, c redis.Cmdable, queueID string, current int64, limit int64) ([]string, error) {
	ids, err := c.ZRangeByScore(ctx, waitingKey(queueID), &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(current, 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read waiting set: %w", err)
	}
	return ids, nil
}

func getQueue(ctx context.Context, c redis.Cmdable, queueID string) (*domain.Queue, error) {
	m, err := c.HGetAll(ctx, queueKey(queueID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	if len(m) == 0 {
		return nil, apperrors.ErrQueueNotFound
	}
	return decodeQueue(m)
}

func getEntry(ctx context.Context, c redis.Cmdable, queueID, entryID string) (*domain.Entry, error) {
	m, err := c.HGetAll(ctx, entryKey(queueID, entryID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	if len(m) == 0 {
		return nil, apperrors.ErrEntryNotFound
	}
	return decodeEntry(m)
}

func loadEntries(ctx context.Context, c redis.Cmdable, queueID string, ids []string) ([]domain.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, entryKey(queueID, id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(ids))
	for _, cmd := range cmds {
		e, err := decodeEntry(cmd.Val())
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// attemptError maps a lost WATCH to ErrConflict and logs unexpected failures.
func (r *QueueRepo) attemptError(op, queueID string, err error) error {
	switch {
	case errors.Is(err, redis.TxFailedErr):
		r.log.Debug("optimistic write lost", zap.String("op", op), zap.String("queue_id", queueID))
		return apperrors.ErrConflict
	case errors.Is(err, apperrors.ErrQueueNotFound),
		errors.Is(err, apperrors.ErrEntryNotFound),
		errors.Is(err, apperrors.ErrAlreadyInQueue),
		errors.Is(err, apperrors.ErrInvalidTransition):
	default:
		var exists *apperrors.AlreadyExistsError
		if !errors.As(err, &exists) {
			r.log.Error("redis transaction failed", zap.String("op", op), zap.String("queue_id", queueID), zap.Error(err))
		}
	}
	return err
}
