package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"grpc-queue-service/internal/adapter/db/storetest"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, mr
}

func TestQueueRepo_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) usecase.Repository {
		client, _ := setupTestRedis(t)
		return NewQueueRepo(client, zaptest.NewLogger(t))
	}, storetest.Options{Concurrent: true})
}

// interleaveHook runs fn once, right before the first MULTI/EXEC block is
// sent, simulating a writer that commits between read and write.
type interleaveHook struct {
	once sync.Once
	fn   func()
}

func (h *interleaveHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interleaveHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *interleaveHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if len(cmds) > 0 && cmds[0].Name() == "multi" {
			h.once.Do(h.fn)
		}
		return next(ctx, cmds)
	}
}

func TestQueueRepo_ConcurrentWriteIsConflict(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewQueueRepo(client, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	client.AddHook(&interleaveHook{fn: func() {
		require.NoError(t, other.HIncrBy(ctx, queueKey("q-1"), "version", 1).Err())
	}})

	_, _, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Zero(t, q.LastTicketNumber, "losing attempt wrote nothing")
	assert.False(t, mr.Exists(entryKey("q-1", "e-1")))

	// the hook fired once; the retry goes through
	_, e, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.TicketNumber)
}

func TestQueueRepo_CoordinatorRetriesLostWatch(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewQueueRepo(client, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	client.AddHook(&interleaveHook{fn: func() {
		require.NoError(t, other.HIncrBy(ctx, queueKey("q-1"), "version", 1).Err())
	}})

	uc := usecase.New(repo, zaptest.NewLogger(t), usecase.WithRetryPolicy(usecase.RetryPolicy{JoinAttempts: 2}))
	resp, err := uc.JoinQueue(ctx, usecase.JoinQueueRequest{QueueID: "q-1", UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.TicketNumber)
}

func TestQueueRepo_KeyLayout(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewQueueRepo(client, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	_, _, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", UserName: "Alice", Now: time.Now()})
	require.NoError(t, err)

	assert.True(t, mr.Exists("store:queue:q-1"))
	assert.Equal(t, "1", mr.HGet("store:queue:q-1", "last_ticket_number"))
	assert.Equal(t, "waiting", mr.HGet("store:queue:q-1:entry:e-1", "status"))
	assert.Equal(t, "e-1", mr.HGet("store:user:alice:waiting", "q-1"))

	members, err := mr.ZMembers("store:queue:q-1:waiting")
	require.NoError(t, err)
	assert.Equal(t, []string{"e-1"}, members)

	_, _, err = repo.CallNext(ctx, "q-1", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "serving", mr.HGet("store:queue:q-1:entry:e-1", "status"))
	assert.False(t, mr.Exists("store:user:alice:waiting"), "empty hash is removed")
	serving, err := mr.Members("store:queue:q-1:serving")
	require.NoError(t, err)
	assert.Equal(t, []string{"e-1"}, serving)
}

func TestQueueRepo_CorruptQueueHash(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewQueueRepo(client, zaptest.NewLogger(t))

	mr.HSet("store:queue:bad", "id", "bad", "last_ticket_number", "abc")

	_, err := repo.GetQueue(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrQueueNotFound)
}
