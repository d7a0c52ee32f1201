package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"grpc-queue-service/internal/adapter/db/storetest"
	domain "grpc-queue-service/internal/domain/queue"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "queue.db")), &gorm.Config{})
	require.NoError(t, err)

	// sqlite takes one writer at a time; the app pins the pool the same way
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Migrate the schema
	err = db.AutoMigrate(Models()...)
	require.NoError(t, err)

	return db
}

func TestQueueRepoPG_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) usecase.Repository {
		return NewQueueRepoPG(setupTestDB(t), zaptest.NewLogger(t))
	}, storetest.Options{Concurrent: true})
}

func TestQueueRepoPG_StaleVersionConflicts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepoPG(db, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	_, _, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	require.NoError(t, err)

	// a writer that read the queue before the join above
	stale, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	staleVersion := stale.Version - 1
	stale.LastTicketNumber = 1
	stale.TotalInQueue = 1
	entry, err := domain.NewEntry("e-2", "q-1", "bob", "Bob", 1, time.Now())
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return commitJoin(tx, staleVersion, stale, entry)
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.LastTicketNumber, "losing writer left no trace")
	_, err = repo.GetEntry(ctx, "q-1", "e-2")
	assert.ErrorIs(t, err, apperrors.ErrEntryNotFound)
}

func TestQueueRepoPG_DuplicateTicketIsConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepoPG(db, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	_, first, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	require.NoError(t, err)

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	dup, err := domain.NewEntry("e-2", "q-1", "bob", "Bob", first.TicketNumber, time.Now())
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return commitJoin(tx, q.Version, q, dup)
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict, "unique (queue_id, ticket_number) backs the version check")
}

func TestQueueRepoPG_DuplicateEntryIDIsNotRetried(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepoPG(db, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	_, _, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	require.NoError(t, err)

	_, _, err = repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "bob", Now: time.Now()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrConflict)
	var exists *apperrors.AlreadyExistsError
	assert.ErrorAs(t, err, &exists)

	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.LastTicketNumber, "failed join rolled back")
}

func TestQueueRepoPG_CancelledEntryCannotBeCalled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepoPG(db, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")

	_, e, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "e-1", QueueID: "q-1", UserID: "alice", Now: time.Now()})
	require.NoError(t, err)
	q, err := repo.GetQueue(ctx, "q-1")
	require.NoError(t, err)

	_, _, err = repo.CancelEntry(ctx, usecase.CancelEntryParams{QueueID: "q-1", EntryID: e.ID, UserID: "alice", Now: time.Now()})
	require.NoError(t, err)

	// an advance that read before the cancel committed
	readVersion := q.Version
	require.NoError(t, q.Call(e.TicketNumber, time.Now()))
	require.NoError(t, e.TransitionTo(domain.StatusServing, time.Now()))
	err = db.Transaction(func(tx *gorm.DB) error {
		return commitCall(tx, readVersion, q, e)
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	stored, err := repo.GetEntry(ctx, "q-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestQueueRepoPG_ListWaitingByUserOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepoPG(db, zaptest.NewLogger(t))
	ctx := context.Background()
	storetest.NewQueue(t, repo, "q-1", "Pharmacy")
	storetest.NewQueue(t, repo, "q-2", "Radiology")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "late", QueueID: "q-1", UserID: "alice", Now: base.Add(time.Hour)})
	require.NoError(t, err)
	_, _, err = repo.IssueTicket(ctx, usecase.IssueTicketParams{EntryID: "early", QueueID: "q-2", UserID: "alice", Now: base})
	require.NoError(t, err)

	entries, err := repo.ListWaitingByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "early", entries[0].ID)
	assert.Equal(t, "late", entries[1].ID)
}
