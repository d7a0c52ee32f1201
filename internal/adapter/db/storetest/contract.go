// Package storetest holds the behaviour every queue store must share,
// run by each store's own tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "grpc-queue-service/internal/domain/queue"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

// Options tunes the contract for a store.
type Options struct {
	// Concurrent enables the parallel join/advance checks. Stores backed by
	// a single-connection database leave it off.
	Concurrent bool
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises repo constructors returned by newRepo against the store contract.
func Run(t *testing.T, newRepo func(t *testing.T) usecase.Repository, opts Options) {
	t.Run("create get list", func(t *testing.T) { testCreateGetList(t, newRepo(t)) })
	t.Run("issue tickets", func(t *testing.T) { testIssueTickets(t, newRepo(t)) })
	t.Run("issue ticket unknown queue", func(t *testing.T) { testIssueUnknownQueue(t, newRepo(t)) })
	t.Run("call next in ticket order", func(t *testing.T) { testCallNext(t, newRepo(t)) })
	t.Run("call next ignores entry id order", func(t *testing.T) { testCallNextByTicket(t, newRepo(t)) })
	t.Run("call next on empty queue", func(t *testing.T) { testCallNextEmpty(t, newRepo(t)) })
	t.Run("cancel entry", func(t *testing.T) { testCancelEntry(t, newRepo(t)) })
	t.Run("waiting by user", func(t *testing.T) { testWaitingByUser(t, newRepo(t)) })
	if opts.Concurrent {
		t.Run("concurrent joins", func(t *testing.T) { testConcurrentJoins(t, newRepo(t)) })
		t.Run("concurrent advances", func(t *testing.T) { testConcurrentAdvances(t, newRepo(t)) })
	}
}

// NewQueue persists a queue named name and returns it.
func NewQueue(t *testing.T, repo usecase.Repository, id, name string) *domain.Queue {
	t.Helper()
	q, err := domain.NewQueue(id, "org-1", name, "", "Main hall", 4, baseTime)
	require.NoError(t, err)
	require.NoError(t, repo.CreateQueue(context.Background(), q))
	return q
}

func join(t *testing.T, repo usecase.Repository, queueID, userID string, minute int) *domain.Entry {
	t.Helper()
	return joinAs(t, repo, uuid.NewString(), queueID, userID, minute)
}

func joinAs(t *testing.T, repo usecase.Repository, entryID, queueID, userID string, minute int) *domain.Entry {
	t.Helper()
	_, e, err := repo.IssueTicket(context.Background(), usecase.IssueTicketParams{
		EntryID:  entryID,
		QueueID:  queueID,
		UserID:   userID,
		UserName: "User " + userID,
		Now:      baseTime.Add(time.Duration(minute) * time.Minute),
	})
	require.NoError(t, err)
	return e
}

func testCreateGetList(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-b", "Bank Counter")
	NewQueue(t, repo, "q-a", "Admissions")

	got, err := repo.GetQueue(ctx, "q-b")
	require.NoError(t, err)
	assert.Equal(t, "Bank Counter", got.Name)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, "Main hall", got.LocationName)
	assert.Equal(t, int64(4), got.AverageWaitTime)
	assert.Zero(t, got.LastTicketNumber)

	_, err = repo.GetQueue(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrQueueNotFound)

	list, err := repo.ListQueues(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Admissions", list[0].Name)
	assert.Equal(t, "Bank Counter", list[1].Name)
}

func testIssueTickets(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")

	a := join(t, repo, "q-1", "alice", 1)
	b := join(t, repo, "q-1", "bob", 2)
	c := join(t, repo, "q-1", "carol", 3)

	assert.Equal(t, []int64{1, 2, 3}, []int64{a.TicketNumber, b.TicketNumber, c.TicketNumber})
	assert.Equal(t, domain.StatusWaiting, c.Status)
	assert.Equal(t, "User carol", c.UserName)

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.LastTicketNumber)
	assert.Equal(t, int64(3), q.TotalInQueue)
	assert.Zero(t, q.CurrentNumber)

	found, err := repo.FindWaitingEntry(ctx, "q-1", "bob")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, b.ID, found.ID)

	none, err := repo.FindWaitingEntry(ctx, "q-1", "dave")
	require.NoError(t, err)
	assert.Nil(t, none)

	stored, err := repo.GetEntry(ctx, "q-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TicketNumber)
	assert.True(t, stored.EntryTime.Equal(baseTime.Add(time.Minute)))

	_, err = repo.GetEntry(ctx, "q-1", "nope")
	assert.ErrorIs(t, err, apperrors.ErrEntryNotFound)
}

func testIssueUnknownQueue(t *testing.T, repo usecase.Repository) {
	_, _, err := repo.IssueTicket(context.Background(), usecase.IssueTicketParams{
		EntryID: "e-1", QueueID: "missing", UserID: "alice", Now: baseTime,
	})
	assert.ErrorIs(t, err, apperrors.ErrQueueNotFound)

	_, _, err = repo.CallNext(context.Background(), "missing", baseTime)
	assert.ErrorIs(t, err, apperrors.ErrQueueNotFound)

	_, _, err = repo.ListWaiting(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrQueueNotFound)
}

func testCallNext(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")
	a := join(t, repo, "q-1", "alice", 1)
	b := join(t, repo, "q-1", "bob", 2)
	c := join(t, repo, "q-1", "carol", 3)

	q, called, err := repo.CallNext(ctx, "q-1", baseTime.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, a.ID, called.ID)
	assert.Equal(t, domain.StatusServing, called.Status)
	require.NotNil(t, called.CalledAt)
	assert.Equal(t, int64(1), q.CurrentNumber)
	assert.Equal(t, int64(2), q.TotalInQueue)

	q, called, err = repo.CallNext(ctx, "q-1", baseTime.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, b.ID, called.ID)
	assert.Equal(t, "bob", called.UserID)
	assert.Equal(t, int64(2), q.CurrentNumber)

	first, err := repo.GetEntry(ctx, "q-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusServed, first.Status)

	q, waiting, err := repo.ListWaiting(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q.CurrentNumber)
	require.Len(t, waiting, 1)
	assert.Equal(t, c.ID, waiting[0].ID)
	assert.Equal(t, int64(3), waiting[0].TicketNumber)
}

func testCallNextByTicket(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")
	joinAs(t, repo, "f3a1", "q-1", "alice", 1)
	joinAs(t, repo, "0b7c", "q-1", "bob", 2)
	joinAs(t, repo, "9d22", "q-1", "carol", 3)

	_, head, err := repo.ListWaiting(ctx, "q-1")
	require.NoError(t, err)
	require.Len(t, head, 3)
	assert.Equal(t, "f3a1", head[0].ID)

	var calledIDs []string
	for i := 0; i < 3; i++ {
		q, called, err := repo.CallNext(ctx, "q-1", baseTime.Add(time.Duration(10+i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), called.TicketNumber)
		assert.Equal(t, called.TicketNumber, q.CurrentNumber)
		calledIDs = append(calledIDs, called.ID)
	}
	assert.Equal(t, []string{"f3a1", "0b7c", "9d22"}, calledIDs)

	_, waiting, err := repo.ListWaiting(ctx, "q-1")
	require.NoError(t, err)
	assert.Empty(t, waiting, "no ticket left behind")
}

func testCallNextEmpty(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")

	q, called, err := repo.CallNext(ctx, "q-1", baseTime)
	assert.ErrorIs(t, err, apperrors.ErrQueueEmpty)
	assert.Nil(t, called)
	require.NotNil(t, q)
	assert.Zero(t, q.CurrentNumber)

	join(t, repo, "q-1", "alice", 1)
	_, _, err = repo.CallNext(ctx, "q-1", baseTime)
	require.NoError(t, err)

	q, _, err = repo.CallNext(ctx, "q-1", baseTime)
	assert.ErrorIs(t, err, apperrors.ErrQueueEmpty)
	require.NotNil(t, q)
	assert.Equal(t, int64(1), q.CurrentNumber, "empty advance leaves the pointer alone")

	stored, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentNumber)
}

func testCancelEntry(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")
	a := join(t, repo, "q-1", "alice", 1)
	b := join(t, repo, "q-1", "bob", 2)

	_, _, err := repo.CancelEntry(ctx, usecase.CancelEntryParams{QueueID: "q-1", EntryID: a.ID, UserID: "mallory", Now: baseTime})
	assert.ErrorIs(t, err, apperrors.ErrEntryNotFound)

	q, cancelled, err := repo.CancelEntry(ctx, usecase.CancelEntryParams{QueueID: "q-1", EntryID: a.ID, UserID: "alice", Now: baseTime})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(1), q.TotalInQueue)
	assert.Equal(t, int64(2), q.LastTicketNumber)

	_, _, err = repo.CancelEntry(ctx, usecase.CancelEntryParams{QueueID: "q-1", EntryID: a.ID, UserID: "alice", Now: baseTime})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	none, err := repo.FindWaitingEntry(ctx, "q-1", "alice")
	require.NoError(t, err)
	assert.Nil(t, none, "cancelled entry frees the user to join again")

	_, called, err := repo.CallNext(ctx, "q-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, b.ID, called.ID, "cancelled tickets are skipped")

	again := join(t, repo, "q-1", "alice", 5)
	assert.Equal(t, int64(3), again.TicketNumber, "numbers are never reused")
}

func testWaitingByUser(t *testing.T, repo usecase.Repository) {
	ctx := context.Background()
	NewQueue(t, repo, "q-1", "Pharmacy")
	NewQueue(t, repo, "q-2", "Radiology")
	join(t, repo, "q-1", "bob", 1)
	join(t, repo, "q-1", "alice", 2)
	join(t, repo, "q-2", "alice", 3)
	_, _, err := repo.CallNext(ctx, "q-1", baseTime)
	require.NoError(t, err)

	entries, err := repo.ListWaitingByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	queues := []string{entries[0].QueueID, entries[1].QueueID}
	sort.Strings(queues)
	assert.Equal(t, []string{"q-1", "q-2"}, queues)

	entries, err = repo.ListWaitingByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, entries, "served entries are not waiting")
}

func newCoordinator(t *testing.T, repo usecase.Repository) *usecase.Usecase {
	return usecase.New(repo, zaptest.NewLogger(t), usecase.WithRetryPolicy(usecase.RetryPolicy{
		JoinAttempts:    50,
		AdvanceAttempts: 50,
		LeaveAttempts:   50,
		Backoff:         time.Millisecond,
	}))
}

func testConcurrentJoins(t *testing.T, repo usecase.Repository) {
	const n = 40
	NewQueue(t, repo, "q-1", "Pharmacy")
	uc := newCoordinator(t, repo)

	var wg sync.WaitGroup
	tickets := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := uc.JoinQueue(context.Background(), usecase.JoinQueueRequest{
				QueueID: "q-1", UserID: fmt.Sprintf("user-%d", i), UserName: "Guest",
			})
			errs[i] = err
			if err == nil {
				tickets[i] = resp.TicketNumber
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	for i, ticket := range tickets {
		assert.Equal(t, int64(i+1), ticket)
	}

	q, err := repo.GetQueue(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), q.LastTicketNumber)
	assert.Equal(t, int64(n), q.TotalInQueue)
}

func testConcurrentAdvances(t *testing.T, repo usecase.Repository) {
	const entries = 20
	const callers = 30
	NewQueue(t, repo, "q-1", "Pharmacy")
	for i := 0; i < entries; i++ {
		join(t, repo, "q-1", fmt.Sprintf("user-%d", i), i)
	}
	uc := newCoordinator(t, repo)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served = make(map[int64]int)
		empty  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := uc.AdvanceQueue(context.Background(), usecase.AdvanceQueueRequest{QueueID: "q-1"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if resp.Empty {
				empty++
				return
			}
			served[resp.TicketNumber]++
		}()
	}
	wg.Wait()

	assert.Len(t, served, entries, "every ticket called")
	for ticket, count := range served {
		assert.Equal(t, 1, count, "ticket %d called more than once", ticket)
	}
	assert.Equal(t, callers-entries, empty)

	q, err := repo.GetQueue(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(entries), q.CurrentNumber)
	assert.Zero(t, q.TotalInQueue)
}
