package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"grpc-queue-service/internal/adapter/cache"
	"grpc-queue-service/internal/adapter/db/memory"
	domain "grpc-queue-service/internal/domain/queue"
	"grpc-queue-service/internal/usecase/queue"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.QueueRepo {
	store := memory.NewQueueRepo()
	q, err := domain.NewQueue("q-1", "org-1", "Pharmacy", "", "", 5, testNow)
	require.NoError(t, err)
	require.NoError(t, store.CreateQueue(context.Background(), q))
	return store
}

func setupRepo(t *testing.T) (queue.Repository, cache.QueueCache, *miniredis.Miniredis) {
	return setupRepoWith(t, seededStore(t))
}

func setupRepoWith(t *testing.T, store queue.Repository) (queue.Repository, cache.QueueCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)
	queueCache := cache.NewRedisQueueCache(client, time.Minute, log)
	return NewQueueRepository(store, queueCache, log), queueCache, mr
}

func TestQueueRepository_GetQueuePopulatesCache(t *testing.T) {
	repo, _, mr := setupRepo(t)
	ctx := context.Background()

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, "Pharmacy", q.Name)
	assert.True(t, mr.Exists("queue:q-1"))
}

func TestQueueRepository_MutationsWriteThrough(t *testing.T) {
	repo, queueCache, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)

	_, e, err := repo.IssueTicket(ctx, queue.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: testNow})
	require.NoError(t, err)
	cached, err := queueCache.Get(ctx, "q-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(1), cached.LastTicketNumber, "join caches the committed counters")

	_, _, err = repo.CallNext(ctx, "q-1", testNow)
	require.NoError(t, err)
	cached, err = queueCache.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.CurrentNumber, "advance caches the committed counters")

	_, _, err = repo.CancelEntry(ctx, queue.CancelEntryParams{QueueID: "q-1", EntryID: e.ID, UserID: "alice", Now: testNow})
	assert.Error(t, err, "served entry cannot be cancelled")
	cached, err = queueCache.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Version, "failed attempt keeps the snapshot")
}

// pausingStore holds the first GetQueue after it has read the store.
type pausingStore struct {
	queue.Repository
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *pausingStore) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	q, err := s.Repository.GetQueue(ctx, queueID)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return q, err
}

func TestQueueRepository_MissCannotOverwriteCommit(t *testing.T) {
	store := &pausingStore{
		Repository: seededStore(t),
		read:       make(chan struct{}),
		release:    make(chan struct{}),
	}
	repo, _, _ := setupRepoWith(t, store)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := repo.GetQueue(ctx, "q-1")
		assert.NoError(t, err)
	}()

	// the miss above holds a snapshot from before this join
	<-store.read
	_, _, err := repo.IssueTicket(ctx, queue.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: testNow})
	require.NoError(t, err)
	_, _, err = repo.CallNext(ctx, "q-1", testNow)
	require.NoError(t, err)

	close(store.release)
	<-done

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.CurrentNumber)
	assert.Equal(t, int64(1), q.LastTicketNumber)
	assert.Zero(t, q.TotalInQueue)
}

func TestQueueRepository_EmptyAdvanceKeepsSnapshot(t *testing.T) {
	repo, _, mr := setupRepo(t)
	ctx := context.Background()

	_, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)

	q, _, err := repo.CallNext(ctx, "q-1", testNow)
	require.Error(t, err)
	require.NotNil(t, q, "empty advance still reports the queue")
	assert.True(t, mr.Exists("queue:q-1"))
}

func TestQueueRepository_CacheErrorFallsBackToStore(t *testing.T) {
	client, mock := redismock.NewClientMock()
	log := zaptest.NewLogger(t)
	repo := NewQueueRepository(seededStore(t), cache.NewRedisQueueCache(client, time.Minute, log), log)

	mock.ExpectHGet("queue:q-1", "data").SetErr(errors.New("connection refused"))
	mock.ExpectHGet("queue:q-1", "data").SetErr(errors.New("connection refused"))

	q, err := repo.GetQueue(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1", q.ID)
}

// blockingStore counts GetQueue calls and holds them until released.
type blockingStore struct {
	queue.Repository
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Repository.GetQueue(ctx, queueID)
}

func TestQueueRepository_SingleFlight(t *testing.T) {
	store := &blockingStore{
		Repository: seededStore(t),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	repo := NewQueueRepository(store, nil, zaptest.NewLogger(t))

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*domain.Queue, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := repo.GetQueue(context.Background(), "q-1")
			assert.NoError(t, err)
			results[i] = q
		}(i)
	}

	<-store.entered
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotSame(t, results[0], results[1])
}
